package model

// NotificationType identifies the kind of event a notification describes.
type NotificationType string

const (
	TypeBooking NotificationType = "booking"
	TypeMessage NotificationType = "message"
	TypeReview  NotificationType = "review"
	TypeSystem  NotificationType = "system"
)

// Booking status values carried in a booking notification's Data payload.
const (
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Notification represents a single entry in the user's notification feed.
// The canonical feed is a JSON array of these records held under one key
// in the durable store; everything else in the process works on copies.
type Notification struct {
	// ID is an opaque unique identifier. Locally-created records get a
	// UUID; remote-origin records keep the server-assigned id.
	ID string `json:"id"`

	// Type classifies the notification.
	Type NotificationType `json:"type"`

	// Title is the short display headline.
	Title string `json:"title"`

	// Message is the display body text.
	Message string `json:"message"`

	// Time is the creation instant. Locally-created records store
	// RFC3339 UTC; remote-origin records keep the server's created_at
	// string verbatim. Rendering for display happens in the UI only.
	Time string `json:"time"`

	// IsRead indicates whether the user has seen this notification.
	IsRead bool `json:"isRead"`

	// Action is an optional label for a suggested UI action.
	Action string `json:"action,omitempty"`

	// Data is an optional structured payload whose shape depends on
	// Type (booking records carry a "status" entry).
	Data map[string]any `json:"data,omitempty"`

	// UserID, when set, makes the notification private to that user.
	UserID string `json:"userId,omitempty"`
}

// NotificationInput holds the caller-supplied fields for creating a
// notification. ID, Time, and IsRead are generated by the feed store.
type NotificationInput struct {
	Type    NotificationType
	Title   string
	Message string
	Action  string
	Data    map[string]any
}

// BookingStatus returns the "status" entry of the Data payload, or ""
// when absent or not a string.
func (n Notification) BookingStatus() string {
	if n.Data == nil {
		return ""
	}
	s, _ := n.Data["status"].(string)
	return s
}
