package chat

// User represents a chat user. UserID is unique; ConnectionStatus and
// LastSeenAt carry data only on users returned by listing queries.
type User struct {
	UserID           string               `json:"user_id"`
	Nickname         string               `json:"nickname"`
	ProfileURL       string               `json:"profile_url"`
	ConnectionStatus UserConnectionStatus `json:"connection_status,omitempty"`
	LastSeenAt       int64                `json:"last_seen_at,omitempty"`
	MetaData         map[string]string    `json:"meta_data,omitempty"`
}

// Member is a group channel member: a user plus invitation state and
// block relationship flags.
type Member struct {
	User
	State         MemberState `json:"state"`
	IsBlockedByMe bool        `json:"is_blocked_by_me,omitempty"`
	IsBlockingMe  bool        `json:"is_blocking_me,omitempty"`
}
