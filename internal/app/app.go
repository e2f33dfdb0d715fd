package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pawnest/companion/internal/feed"
	"github.com/pawnest/companion/internal/identity"
	"github.com/pawnest/companion/internal/keys"
	"github.com/pawnest/companion/internal/model"
	"github.com/pawnest/companion/internal/ui"
	"github.com/pawnest/companion/internal/ui/feedview"
	"github.com/pawnest/companion/internal/ui/setupview"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewFeed ViewState = iota
	ViewSetup
	ViewHelp
)

// feedPushMsg carries a subscriber-delivered filtered list to the UI.
type feedPushMsg struct {
	notifications []model.Notification
}

// Model is the root Bubble Tea model that manages view routing, the
// frame layout, and the feed store subscription.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	store   *feed.Store
	session *identity.Session

	feedView  feedview.Model
	setupView setupview.Model

	// updates receives every subscriber broadcast from the feed store.
	updates     chan []model.Notification
	unsubscribe func()

	unread int
	ready  bool
}

// New creates the root application model and subscribes it to the
// feed store.
func New(
	store *feed.Store,
	session *identity.Session,
	cfg *model.AppConfig,
	cfgPath string,
) *Model {
	k := keys.DefaultKeyMap()

	m := &Model{
		currentView: ViewFeed,
		keys:        k,
		store:       store,
		session:     session,
		feedView:    feedview.New(k, 80, 24),
		setupView:   setupview.New(session, cfg, cfgPath, 80, 24),
		updates:     make(chan []model.Notification, 16),
	}

	m.unsubscribe = store.Subscribe(func(list []model.Notification) {
		select {
		case m.updates <- list:
		default:
			// Drop if the UI is behind; the next broadcast carries
			// the full list anyway.
		}
	})

	return m
}

// Init loads the feed and starts listening for store broadcasts.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadFeed(false), m.waitForPush())
}

// Update handles messages and dispatches to the active view.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.feedView.SetSize(w, h)
		m.setupView.SetSize(w, h)
		return m.updateActiveView(msg)

	case feedPushMsg:
		m.setFeed(msg.notifications)
		var cmd tea.Cmd
		m.feedView, cmd = m.feedView.Update(feedview.FeedUpdatedMsg{
			Notifications: msg.notifications,
		})
		return m, tea.Batch(cmd, m.waitForPush())

	case feedview.FeedUpdatedMsg:
		m.setFeed(msg.Notifications)
		var cmd tea.Cmd
		m.feedView, cmd = m.feedView.Update(msg)
		return m, cmd

	case feedview.MarkReadMsg:
		store := m.store
		id := msg.ID
		return m, func() tea.Msg {
			store.MarkRead(context.Background(), id)
			return nil
		}

	case feedview.DeleteMsg:
		store := m.store
		id := msg.ID
		return m, func() tea.Msg {
			store.Delete(context.Background(), id)
			return nil
		}

	case setupview.DoneMsg:
		m.currentView = ViewFeed
		if msg.Saved {
			// Fresh identity; force a remote fetch.
			return m, m.loadFeed(true)
		}
		return m, nil

	case tea.KeyMsg:
		// Unmatched keys, and matched keys whose guard fails (say "q"
		// typed into the setup form), fall through to the active view.
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.currentView == ViewFeed || msg.String() == "ctrl+c" {
				m.shutdown()
				return m, tea.Quit
			}

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			if m.currentView == ViewFeed {
				m.previousView = m.currentView
				m.currentView = ViewHelp
				return m, nil
			}

		case key.Matches(msg, m.keys.Back):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}

		case key.Matches(msg, m.keys.Refresh):
			if m.currentView == ViewFeed {
				return m, m.loadFeed(true)
			}

		case key.Matches(msg, m.keys.MarkAllRead):
			if m.currentView == ViewFeed {
				store := m.store
				return m, func() tea.Msg {
					store.MarkAllRead(context.Background())
					return nil
				}
			}

		case key.Matches(msg, m.keys.ClearAll):
			if m.currentView == ViewFeed {
				store := m.store
				return m, func() tea.Msg {
					store.ClearAll(context.Background())
					return nil
				}
			}

		case key.Matches(msg, m.keys.Setup):
			if m.currentView == ViewFeed {
				m.previousView = m.currentView
				m.currentView = ViewSetup
				return m, m.setupView.Init()
			}
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m *Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewFeed:
		m.feedView, cmd = m.feedView.Update(msg)
	case ViewSetup:
		m.setupView, cmd = m.setupView.Update(msg)
	case ViewHelp:
		// Static view.
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "PawNest Companion"
	if m.unread > 0 {
		title = fmt.Sprintf("PawNest Companion [%d unread]", m.unread)
	}
	header := m.layout.RenderHeader(title, m.accountStatus())
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current view.
func (m *Model) renderContent() string {
	switch m.currentView {
	case ViewFeed:
		return m.feedView.View()
	case ViewSetup:
		return m.setupView.View()
	case ViewHelp:
		return m.renderHelp()
	default:
		return ""
	}
}

// renderHelp lists the global keybindings.
func (m *Model) renderHelp() string {
	return "\n" +
		"  j/k     move\n" +
		"  enter   mark read\n" +
		"  A       mark all read\n" +
		"  d       delete\n" +
		"  X       clear feed\n" +
		"  r       refresh\n" +
		"  c       account setup\n" +
		"  ?       toggle help\n" +
		"  q       quit\n"
}

// accountStatus returns the signed-in account fragment for the header.
func (m *Model) accountStatus() string {
	user := m.session.CurrentUser()
	if user == nil {
		return "signed out"
	}

	role := "owner"
	if user.IsSitter() {
		role = "sitter"
	}
	name := user.Name
	if name == "" {
		name = user.ID
	}
	return fmt.Sprintf("%s (%s)", name, role)
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m *Model) keyHints() string {
	switch m.currentView {
	case ViewSetup:
		return "enter next | esc cancel"
	case ViewHelp:
		return "? close help | esc back"
	default:
		return "enter read | A all read | d delete | r refresh | c setup | ? help | q quit"
	}
}

// setFeed records the latest filtered list for the unread badge.
func (m *Model) setFeed(list []model.Notification) {
	count := 0
	for _, n := range list {
		if !n.IsRead {
			count++
		}
	}
	m.unread = count
}

// loadFeed returns a command that reads the feed (optionally forcing
// a remote fetch) and hands the result to the feed view.
func (m *Model) loadFeed(force bool) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		var list []model.Notification
		if force {
			list = store.Refresh(context.Background())
		} else {
			list = store.List(context.Background())
		}
		return feedview.FeedUpdatedMsg{Notifications: list}
	}
}

// waitForPush returns a command that waits for the next subscriber
// broadcast from the feed store.
func (m *Model) waitForPush() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		list, ok := <-updates
		if !ok {
			return nil
		}
		return feedPushMsg{notifications: list}
	}
}

// shutdown tears down the store subscription before the program exits.
func (m *Model) shutdown() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.store.Close()
}
