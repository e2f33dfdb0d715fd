package model

// UserRole distinguishes the two marketplace account kinds.
type UserRole string

const (
	RoleSitter UserRole = "pet_sitter"
	RoleOwner  UserRole = "pet_owner"
)

// User is the signed-in marketplace account as seen by this client.
type User struct {
	// ID is the marketplace user id.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Role determines which notifications are visible in the feed.
	Role UserRole `json:"role"`
}

// IsSitter reports whether the user holds the pet-sitter role.
// Anything else is treated as a pet owner.
func (u User) IsSitter() bool {
	return u.Role == RoleSitter
}
