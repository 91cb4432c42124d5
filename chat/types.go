package chat

// ConnectionState reports the websocket session lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// UserConnectionStatus is meaningful only on users populated by listing
// queries.
type UserConnectionStatus int

const (
	UserStatusNotAvailable UserConnectionStatus = iota
	UserStatusOnline
	UserStatusOffline
)

// ChannelType distinguishes the two channel aggregates.
type ChannelType int

const (
	ChannelTypeOpen ChannelType = iota
	ChannelTypeGroup
)

func (t ChannelType) String() string {
	if t == ChannelTypeGroup {
		return "group"
	}
	return "open"
}

// MessageType tags the message variant.
type MessageType int

const (
	MessageTypeUser MessageType = iota
	MessageTypeFile
	MessageTypeAdmin
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeFile:
		return "file"
	case MessageTypeAdmin:
		return "admin"
	default:
		return "user"
	}
}

// MessageTypeFilter narrows history queries.
type MessageTypeFilter int

const (
	MessageTypeFilterAll MessageTypeFilter = iota
	MessageTypeFilterUser
	MessageTypeFilterFile
	MessageTypeFilterAdmin
)

// MemberState is the invitation state of a group channel member.
type MemberState int

const (
	MemberStateJoined MemberState = iota
	MemberStateInvited
)

// MemberStateFilter narrows group channel list queries and counts.
type MemberStateFilter int

const (
	MemberStateFilterAll MemberStateFilter = iota
	MemberStateFilterJoinedOnly
	MemberStateFilterInvitedOnly
)

// GroupChannelListOrder fixes the sort order of channel list pages.
type GroupChannelListOrder int

const (
	OrderChronological GroupChannelListOrder = iota
	OrderLatestLastMessage
)

// QueryType is the logical connective for the users-include filter.
type QueryType int

const (
	QueryTypeAnd QueryType = iota
	QueryTypeOr
)

// PublicStateFilter narrows group channel list queries by publicity.
type PublicStateFilter int

const (
	PublicStateAll PublicStateFilter = iota
	PublicStatePublic
	PublicStatePrivate
)

// HiddenStateFilter narrows group channel list queries by hidden state.
type HiddenStateFilter int

const (
	HiddenStateFilterUnhiddenOnly HiddenStateFilter = iota
	HiddenStateFilterHiddenOnly
	HiddenStateFilterAllowAutoUnhide
	HiddenStateFilterPreventAutoUnhide
)

// HiddenState is the tri-state hidden flag on a group channel.
type HiddenState int

const (
	HiddenStateUnhidden HiddenState = iota
	HiddenStateAllowAutoUnhide
	HiddenStatePreventAutoUnhide
)

// MentionType scopes a message mention.
type MentionType int

const (
	MentionTypeChannel MentionType = iota
	MentionTypeUsers
)

// PushTokenType identifies the push provider a token belongs to.
type PushTokenType int

const (
	PushTokenFCM PushTokenType = iota
	PushTokenAPNS
	PushTokenAPNSVoIP
	PushTokenHMS
)

func (t PushTokenType) String() string {
	switch t {
	case PushTokenAPNS:
		return "apns"
	case PushTokenAPNSVoIP:
		return "apns_voip"
	case PushTokenHMS:
		return "hms"
	default:
		return "fcm"
	}
}

// PushTokenRegistrationStatus is the tri-state outcome of a push token
// registration attempt.
type PushTokenRegistrationStatus int

const (
	PushTokenStatusSuccess PushTokenRegistrationStatus = iota
	PushTokenStatusPending
	PushTokenStatusError
)
