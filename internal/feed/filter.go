package feed

import (
	"strings"

	"github.com/pawnest/companion/internal/model"
)

// Visible returns the subset of list the given user may see. A nil
// user (signed out, or the identity provider failed to resolve) means
// no filtering at all: the filter fails open.
func Visible(user *model.User, list []model.Notification) []model.Notification {
	if user == nil {
		return list
	}

	out := make([]model.Notification, 0, len(list))
	for _, n := range list {
		if visibleTo(*user, n) {
			out = append(out, n)
		}
	}
	return out
}

// visibleTo decides whether a single notification is shown to user.
// A targeted notification (UserID set) is private to that user and
// short-circuits every role rule.
func visibleTo(user model.User, n model.Notification) bool {
	if n.UserID != "" {
		return n.UserID == user.ID
	}

	if user.IsSitter() {
		// Sitters currently see every type; the switch exists so the
		// set can be narrowed per type later.
		switch n.Type {
		case model.TypeBooking, model.TypeMessage, model.TypeReview, model.TypeSystem:
			return true
		default:
			return false
		}
	}

	// Pet owners see messages, system notices, and booking outcomes.
	switch n.Type {
	case model.TypeMessage, model.TypeSystem:
		return true
	case model.TypeBooking:
		switch n.BookingStatus() {
		case model.BookingConfirmed, model.BookingCancelled:
			return true
		}
		return strings.Contains(n.Title, model.BookingConfirmed) ||
			strings.Contains(n.Title, model.BookingCancelled)
	default:
		return false
	}
}
