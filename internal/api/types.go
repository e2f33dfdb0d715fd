package api

import (
	"encoding/json"
	"fmt"
)

// FeedResponse is the payload of GET /api/notifications/.
type FeedResponse struct {
	Success       bool                 `json:"success"`
	Notifications []RemoteNotification `json:"notifications"`
}

// RemoteNotification is a single feed entry as the server sends it.
type RemoteNotification struct {
	// ID is the server-assigned identifier. Some backend versions send
	// it as a JSON number, others as a string.
	ID FlexID `json:"id"`

	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`

	// CreatedAt is the server's creation timestamp string, carried
	// through to the local record verbatim.
	CreatedAt string `json:"created_at"`

	// ReadAt is set once the notification has been read; its presence
	// is the read flag.
	ReadAt *string `json:"read_at"`

	Data map[string]any `json:"data"`
}

// FlexID is a string identifier that also accepts JSON numbers.
type FlexID string

// UnmarshalJSON decodes either a JSON string or a JSON number into the
// identifier.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", string(data))
	}
	*f = FlexID(n.String())
	return nil
}

// ErrorResponse is the error envelope some endpoints return.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
