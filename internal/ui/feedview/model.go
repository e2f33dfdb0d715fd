package feedview

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pawnest/companion/internal/keys"
	"github.com/pawnest/companion/internal/model"
	"github.com/pawnest/companion/internal/theme"
)

// FeedUpdatedMsg carries a fresh filtered notification list into the view.
type FeedUpdatedMsg struct {
	Notifications []model.Notification
}

// MarkReadMsg asks the app to mark the selected notification as read.
type MarkReadMsg struct {
	ID string
}

// DeleteMsg asks the app to delete the selected notification.
type DeleteMsg struct {
	ID string
}

// Model is the notification feed list view.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a new feed view model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Update handles messages for the feed view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case FeedUpdatedMsg:
		items := make([]list.Item, len(msg.Notifications))
		for i, n := range msg.Notifications {
			items[i] = FeedItem{Notification: n}
		}
		cmd := m.list.SetItems(items)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.MarkRead):
			if item, ok := m.list.SelectedItem().(FeedItem); ok {
				id := item.Notification.ID
				return m, func() tea.Msg { return MarkReadMsg{ID: id} }
			}
			return m, nil

		case key.Matches(msg, m.keys.Delete):
			if item, ok := m.list.SelectedItem().(FeedItem); ok {
				id := item.Notification.ID
				return m, func() tea.Msg { return DeleteMsg{ID: id} }
			}
			return m, nil
		}
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn).
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the feed list.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// renderEmptyState shows guidance text when the feed is empty.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	return style.Render(
		"No notifications.\n\n" +
			"Press r to refresh, or c to set up your account.",
	)
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
