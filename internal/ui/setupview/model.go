package setupview

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/pawnest/companion/internal/identity"
	"github.com/pawnest/companion/internal/model"
	"github.com/pawnest/companion/internal/theme"
)

// DoneMsg signals that account setup finished (saved or aborted).
type DoneMsg struct {
	Saved bool
}

// savedMsg is sent after the session and config have been persisted.
type savedMsg struct {
	err error
}

// Model is the account setup form: marketplace URL, who you are, and
// the API token that ends up in the system keyring.
type Model struct {
	form    *huh.Form
	session *identity.Session
	cfg     *model.AppConfig
	cfgPath string

	formBaseURL string
	formUserID  string
	formName    string
	formRole    string
	formToken   string

	statusMsg     string
	width, height int
}

// New creates the setup view bound to the session and config.
func New(session *identity.Session, cfg *model.AppConfig, cfgPath string, width, height int) Model {
	return Model{
		session: session,
		cfg:     cfg,
		cfgPath: cfgPath,
		width:   width,
		height:  height,
	}
}

// Init builds a fresh form pre-filled from the current session/config.
func (m *Model) Init() tea.Cmd {
	m.formBaseURL = m.cfg.API.BaseURL
	if user := m.session.CurrentUser(); user != nil {
		m.formUserID = user.ID
		m.formName = user.Name
		m.formRole = string(user.Role)
	}
	if m.formRole == "" {
		m.formRole = string(model.RoleOwner)
	}
	m.form = m.buildForm()
	return m.form.Init()
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Marketplace URL").
				Description("Root URL of the PawNest backend").
				Placeholder("https://api.pawnest.example.com").
				Value(&m.formBaseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("User ID").
				Description("Your marketplace account id").
				Value(&m.formUserID).
				Validate(validateRequired("User ID")),
			huh.NewInput().
				Title("Display name").
				Value(&m.formName),
			huh.NewSelect[string]().
				Title("Role").
				Options(
					huh.NewOption("Pet owner", string(model.RoleOwner)),
					huh.NewOption("Pet sitter", string(model.RoleSitter)),
				).
				Value(&m.formRole),
			huh.NewInput().
				Title("API token").
				Description("Stored in your system keyring, never in config").
				EchoMode(huh.EchoModePassword).
				Value(&m.formToken),
		),
	).WithWidth(m.formWidth())
}

// Update drives the form and persists the result on completion.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error saving account: %v", msg.err)
			return m, nil
		}
		return m, func() tea.Msg { return DoneMsg{Saved: true} }
	}

	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.save()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return DoneMsg{Saved: false} }
	}

	return m, cmd
}

// save persists the config and signs the session in.
func (m Model) save() tea.Cmd {
	cfg := m.cfg
	cfgPath := m.cfgPath
	session := m.session
	user := model.User{
		ID:   strings.TrimSpace(m.formUserID),
		Name: strings.TrimSpace(m.formName),
		Role: model.UserRole(m.formRole),
	}
	baseURL := strings.TrimSpace(m.formBaseURL)
	token := m.formToken

	return func() tea.Msg {
		cfg.API.BaseURL = baseURL
		if err := model.SaveConfig(cfgPath, cfg); err != nil {
			return savedMsg{err: err}
		}
		if err := session.SignIn(context.Background(), user, token); err != nil {
			return savedMsg{err: err}
		}
		return savedMsg{}
	}
}

// View renders the setup form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	view := m.form.View()
	if m.statusMsg != "" {
		status := lipgloss.NewStyle().
			Foreground(theme.ColorRed).
			Render(m.statusMsg)
		view = lipgloss.JoinVertical(lipgloss.Left, view, status)
	}
	return view
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

// validateRequired returns a validator that rejects empty input.
func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// validateURL rejects strings that do not parse as absolute http(s) URLs.
func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter a full URL, e.g. https://api.example.com")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must be http or https")
	}
	return nil
}
