package domain

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// ChannelPreferences records which opt-in channels a user accepts.
type ChannelPreferences struct {
	Push  bool
	Email bool
}

// Recipient is the notification view of an account.
type Recipient struct {
	ID            string
	Name          string
	Role          Role
	Status        UserStatus
	Email         *string
	DeviceToken   *string
	Preferences   ChannelPreferences
	ActiveSession bool
}

// CanReceivePush reports whether push should be attempted.
func (r *Recipient) CanReceivePush() bool {
	return r.DeviceToken != nil && *r.DeviceToken != "" && r.Preferences.Push
}

// CanReceiveEmail reports whether email should be attempted.
func (r *Recipient) CanReceiveEmail() bool {
	return r.Email != nil && *r.Email != "" && r.Preferences.Email
}
