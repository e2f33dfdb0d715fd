package feedview

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pawnest/companion/internal/model"
	"github.com/pawnest/companion/internal/theme"
)

// FeedItem wraps a model.Notification so it can be used in a bubbles/list.
type FeedItem struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i FeedItem) FilterValue() string { return i.Notification.Title }

// Title returns the notification headline for the list.
func (i FeedItem) Title() string { return i.Notification.Title }

// Description returns a short summary line for the list.
func (i FeedItem) Description() string {
	parts := []string{
		string(i.Notification.Type),
		relativeTime(i.Notification.Time),
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering feed entries.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single feed entry line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	fi, ok := item.(FeedItem)
	if !ok {
		return
	}

	n := fi.Notification

	bullet := "●"
	if n.IsRead {
		bullet = " "
	}

	badge := theme.TypeStyle(n.Type).Render("[" + string(n.Type) + "]")

	line := fmt.Sprintf(
		"%s %s %s — %s  %s",
		bullet, badge, n.Title, truncate(n.Message, 48), relativeTime(n.Time),
	)

	switch {
	case index == m.Index():
		fmt.Fprint(w, theme.SelectedItemStyle.Render(line))
	case n.IsRead:
		fmt.Fprint(w, theme.ReadItemStyle.Render(line))
	default:
		fmt.Fprint(w, theme.ListItemStyle.Render(line))
	}
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// relativeTime renders a canonical timestamp as a short relative
// phrase. Remote-origin records may carry a server string in an
// unknown format; those are shown as-is.
func relativeTime(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("Jan 2 15:04")
	}
}
