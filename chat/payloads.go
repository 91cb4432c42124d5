package chat

import "encoding/json"

// Wire payloads exchanged inside command frames. Channel and message
// bodies reuse the public model structs, which carry the wire JSON
// tags directly.

type loginRequest struct {
	AppID     string `json:"app_id"`
	UserID    string `json:"user_id"`
	AuthToken string `json:"auth_token,omitempty"`
}

type loginResponse struct {
	User                    User             `json:"user"`
	TotalUnreadCount        int64            `json:"total_unread_count"`
	UnreadCountByCustomType map[string]int64 `json:"unread_count_by_custom_type,omitempty"`
}

type messageDeleteRequest struct {
	ChannelURL  string      `json:"channel_url"`
	ChannelType ChannelType `json:"channel_type"`
	MessageID   int64       `json:"message_id"`
}

type messageDeleteEvent struct {
	ChannelURL  string      `json:"channel_url"`
	ChannelType ChannelType `json:"channel_type"`
	MessageID   int64       `json:"message_id"`
}

// messageListRequest fetches a window of history around an anchor.
// Exactly one of Timestamp or MessageID is set.
type messageListRequest struct {
	ChannelURL       string            `json:"channel_url"`
	ChannelType      ChannelType       `json:"channel_type"`
	Timestamp        *int64            `json:"timestamp,omitempty"`
	MessageID        *int64            `json:"message_id,omitempty"`
	PrevLimit        int               `json:"prev_limit"`
	NextLimit        int               `json:"next_limit"`
	Inclusive        bool              `json:"inclusive"`
	Reverse          bool              `json:"reverse"`
	MessageType      MessageTypeFilter `json:"message_type,omitempty"`
	CustomType       string            `json:"custom_type,omitempty"`
	SenderUserIDs    []string          `json:"sender_user_ids,omitempty"`
	IncludeMetaArray bool              `json:"include_meta_array,omitempty"`
	Token            string            `json:"token,omitempty"`
	Limit            int               `json:"limit,omitempty"`
}

type messageListResponse struct {
	Messages []Message `json:"messages"`
	Next     string    `json:"next,omitempty"`
}

// metaArrayRequest mutates the keyed string arrays of a message.
type metaArrayRequest struct {
	ChannelURL  string              `json:"channel_url"`
	ChannelType ChannelType         `json:"channel_type"`
	MessageID   int64               `json:"message_id"`
	Operation   string              `json:"operation"`
	MetaArrays  map[string][]string `json:"metaarrays,omitempty"`
	Keys        []string            `json:"keys,omitempty"`
}

type channelURLRequest struct {
	ChannelURL  string      `json:"channel_url"`
	ChannelType ChannelType `json:"channel_type,omitempty"`
}

type readReceiptEvent struct {
	ChannelURL string `json:"channel_url"`
	UserID     string `json:"user_id"`
	Timestamp  int64  `json:"ts"`
}

type typingEvent struct {
	ChannelURL string `json:"channel_url"`
	User       User   `json:"user"`
}

// channelCreateRequest covers both channel kinds; group-only fields
// are ignored by the server for open channels and vice versa.
type channelCreateRequest struct {
	ChannelType     ChannelType `json:"channel_type"`
	ChannelURL      string      `json:"channel_url,omitempty"`
	Name            string      `json:"name,omitempty"`
	CoverURL        string      `json:"cover_url,omitempty"`
	Data            string      `json:"data,omitempty"`
	CustomType      string      `json:"custom_type,omitempty"`
	UserIDs         []string    `json:"user_ids,omitempty"`
	OperatorUserIDs []string    `json:"operator_ids,omitempty"`
	IsDistinct      bool        `json:"is_distinct,omitempty"`
	IsPublic        bool        `json:"is_public,omitempty"`
	IsEphemeral     bool        `json:"is_ephemeral,omitempty"`
}

type channelUpdateRequest struct {
	ChannelType     ChannelType `json:"channel_type"`
	ChannelURL      string      `json:"channel_url"`
	Name            *string     `json:"name,omitempty"`
	CoverURL        *string     `json:"cover_url,omitempty"`
	Data            *string     `json:"data,omitempty"`
	CustomType      *string     `json:"custom_type,omitempty"`
	OperatorUserIDs []string    `json:"operator_ids,omitempty"`
	IsDistinct      *bool       `json:"is_distinct,omitempty"`
}

type groupChannelListRequest struct {
	Token                string                `json:"token,omitempty"`
	Limit                int                   `json:"limit"`
	Order                GroupChannelListOrder `json:"order,omitempty"`
	IncludeEmpty         bool                  `json:"include_empty,omitempty"`
	IncludeFrozen        bool                  `json:"include_frozen,omitempty"`
	MemberStateFilter    MemberStateFilter     `json:"member_state_filter,omitempty"`
	PublicStateFilter    PublicStateFilter     `json:"public_mode,omitempty"`
	HiddenStateFilter    HiddenStateFilter     `json:"hidden_mode,omitempty"`
	CustomTypeFilter     []string              `json:"custom_types,omitempty"`
	CustomTypeStartsWith string                `json:"custom_type_startswith,omitempty"`
	ChannelNameContains  string                `json:"name_contains,omitempty"`
	ChannelURLs          []string              `json:"channel_urls,omitempty"`
	UserIDsFilter        []string              `json:"members_include_in,omitempty"`
	QueryType            QueryType             `json:"query_type,omitempty"`
	NicknameContains     string                `json:"members_nickname_contains,omitempty"`
	UnreadOnly           bool                  `json:"unread_filter,omitempty"`
}

// channelListEnvelope wraps a channel list request with the kind being
// listed; exactly one of Group or Open is set.
type channelListEnvelope struct {
	ChannelType ChannelType              `json:"channel_type"`
	Group       *groupChannelListRequest `json:"group,omitempty"`
	Open        *openChannelListRequest  `json:"open,omitempty"`
}

type groupChannelListResponse struct {
	Channels []GroupChannel `json:"channels"`
	Next     string         `json:"next,omitempty"`
}

type openChannelListRequest struct {
	Token         string   `json:"token,omitempty"`
	Limit         int      `json:"limit"`
	NameKeyword   string   `json:"name_contains,omitempty"`
	URLKeyword    string   `json:"url_contains,omitempty"`
	CustomTypes   []string `json:"custom_types,omitempty"`
	IncludeFrozen bool     `json:"include_frozen,omitempty"`
}

type openChannelListResponse struct {
	Channels []OpenChannel `json:"channels"`
	Next     string        `json:"next,omitempty"`
}

type channelCountRequest struct {
	MemberStateFilter MemberStateFilter `json:"member_state_filter,omitempty"`
}

type channelCountResponse struct {
	Count int64 `json:"group_channel_count"`
}

type inviteRequest struct {
	ChannelURL string   `json:"channel_url"`
	UserIDs    []string `json:"user_ids"`
}

type hideRequest struct {
	ChannelURL           string `json:"channel_url"`
	HidePreviousMessages bool   `json:"hide_previous_messages,omitempty"`
	AllowAutoUnhide      bool   `json:"allow_auto_unhide"`
}

// userListRequest drives participant, member, blocked, muted and
// banned user queries; Kind selects the population.
type userListRequest struct {
	Token              string      `json:"token,omitempty"`
	Limit              int         `json:"limit"`
	Kind               string      `json:"kind"`
	ChannelURL         string      `json:"channel_url,omitempty"`
	ChannelType        ChannelType `json:"channel_type,omitempty"`
	UserIDs            []string    `json:"user_ids,omitempty"`
	NicknameStartsWith string      `json:"nickname_startswith,omitempty"`
	MetaDataKey        string      `json:"metadata_key,omitempty"`
	MetaDataValues     []string    `json:"metadata_values,omitempty"`
}

type userListResponse struct {
	Users []User `json:"users"`
	Next  string `json:"next,omitempty"`
}

type metaDataRequest struct {
	ChannelURL  string            `json:"channel_url"`
	ChannelType ChannelType       `json:"channel_type"`
	Operation   string            `json:"operation"`
	Data        map[string]string `json:"data,omitempty"`
	Keys        []string          `json:"keys,omitempty"`
}

type metaDataResponse struct {
	MetaData map[string]string `json:"data"`
}

type metaCountersRequest struct {
	ChannelURL  string           `json:"channel_url"`
	ChannelType ChannelType      `json:"channel_type"`
	Operation   string           `json:"operation"`
	Counters    map[string]int64 `json:"counters,omitempty"`
	Keys        []string         `json:"keys,omitempty"`
}

type metaCountersResponse struct {
	MetaCounters map[string]int64 `json:"counters"`
}

// moderationRequest covers ban, unban, mute and unmute.
type moderationRequest struct {
	ChannelURL  string      `json:"channel_url"`
	ChannelType ChannelType `json:"channel_type"`
	UserID      string      `json:"user_id"`
	Seconds     int         `json:"seconds,omitempty"`
	Description string      `json:"description,omitempty"`
}

type operatorsRequest struct {
	ChannelURL  string      `json:"channel_url"`
	ChannelType ChannelType `json:"channel_type"`
	Operation   string      `json:"operation"`
	UserIDs     []string    `json:"user_ids,omitempty"`
}

type userUpdateRequest struct {
	Nickname   *string `json:"nickname,omitempty"`
	ProfileURL *string `json:"profile_url,omitempty"`
}

type userMetaDataRequest struct {
	Operation string            `json:"operation"`
	Data      map[string]string `json:"data,omitempty"`
	Keys      []string          `json:"keys,omitempty"`
}

type blockRequest struct {
	UserID string `json:"user_id"`
	Block  bool   `json:"block"`
}

type blockResponse struct {
	User User `json:"user"`
}

type invitationPreferenceRequest struct {
	AutoAccept *bool `json:"auto_accept,omitempty"`
}

type invitationPreferenceResponse struct {
	AutoAccept bool `json:"auto_accept"`
}

type pushRegisterRequest struct {
	TokenType PushTokenType `json:"token_type"`
	Token     string        `json:"token"`
	Unique    bool          `json:"unique,omitempty"`
}

type pushUnregisterRequest struct {
	TokenType PushTokenType `json:"token_type,omitempty"`
	Token     string        `json:"token,omitempty"`
	All       bool          `json:"all,omitempty"`
}

type unreadCountRequest struct {
	ByCustomType bool `json:"by_custom_type,omitempty"`
}

type unreadCountResponse struct {
	TotalCount   int64            `json:"total_count"`
	ByCustomType map[string]int64 `json:"by_custom_type,omitempty"`
	ChannelCount int64            `json:"channel_count"`
}

// Event categories carried by the generic event command.
const (
	eventUserJoined      = "user_joined"
	eventUserLeft        = "user_left"
	eventInvited         = "invited"
	eventDeclinedInvite  = "declined_invite"
	eventChannelHidden   = "channel_hidden"
	eventUserEntered     = "user_entered"
	eventUserExited      = "user_exited"
	eventUserMuted       = "user_muted"
	eventUserUnmuted     = "user_unmuted"
	eventUserBanned      = "user_banned"
	eventUserUnbanned    = "user_unbanned"
	eventChannelFrozen   = "channel_frozen"
	eventChannelUnfrozen = "channel_unfrozen"
	eventChannelChanged  = "channel_changed"
	eventChannelDeleted  = "channel_deleted"
	eventOperatorChanged = "operator_changed"
	eventMetaDataCreated = "meta_data_created"
	eventMetaDataUpdated = "meta_data_updated"
	eventMetaDataDeleted = "meta_data_deleted"
	eventCountersCreated = "meta_counters_created"
	eventCountersUpdated = "meta_counters_updated"
	eventCountersDeleted = "meta_counters_deleted"
	eventUnreadCount     = "unread_count_changed"
)

// eventPayload is the body of a server-pushed system event. Channel,
// when present, is a full channel snapshot in the shape named by
// ChannelType.
type eventPayload struct {
	Category                string            `json:"cat"`
	ChannelURL              string            `json:"channel_url,omitempty"`
	ChannelType             ChannelType       `json:"channel_type,omitempty"`
	Channel                 json.RawMessage   `json:"channel,omitempty"`
	User                    *User             `json:"user,omitempty"`
	Users                   []User            `json:"users,omitempty"`
	Inviter                 *User             `json:"inviter,omitempty"`
	Invitee                 *User             `json:"invitee,omitempty"`
	MetaData                map[string]string `json:"data,omitempty"`
	MetaCounters            map[string]int64  `json:"counters,omitempty"`
	Keys                    []string          `json:"keys,omitempty"`
	TotalUnreadCount        int64             `json:"total_unread_count,omitempty"`
	UnreadCountByCustomType map[string]int64  `json:"unread_count_by_custom_type,omitempty"`
}
