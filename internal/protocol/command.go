package protocol

import "encoding/json"

// CommandType enumerates high-level protocol intents.
type CommandType string

const (
	CommandLogin  CommandType = "login"
	CommandLogout CommandType = "logout"

	CommandUserMessage   CommandType = "message"
	CommandFileMessage   CommandType = "file"
	CommandAdminMessage  CommandType = "admin_message"
	CommandUpdateMessage CommandType = "message_update"
	CommandDeleteMessage CommandType = "message_delete"
	CommandMessageList   CommandType = "message_list"
	CommandMetaArray     CommandType = "message_meta_array"

	CommandMarkAsRead    CommandType = "mark_as_read"
	CommandMarkAllAsRead CommandType = "mark_all_as_read"
	CommandTypingStart   CommandType = "typing_start"
	CommandTypingEnd     CommandType = "typing_end"

	CommandChannelCreate  CommandType = "channel_create"
	CommandChannelUpdate  CommandType = "channel_update"
	CommandChannelDelete  CommandType = "channel_delete"
	CommandChannelGet     CommandType = "channel_get"
	CommandChannelList    CommandType = "channel_list"
	CommandChannelCount   CommandType = "channel_count"
	CommandChannelInvite  CommandType = "channel_invite"
	CommandAcceptInvite   CommandType = "channel_accept_invite"
	CommandDeclineInvite  CommandType = "channel_decline_invite"
	CommandChannelJoin    CommandType = "channel_join"
	CommandChannelLeave   CommandType = "channel_leave"
	CommandChannelHide    CommandType = "channel_hide"
	CommandChannelUnhide  CommandType = "channel_unhide"
	CommandChannelEnter   CommandType = "channel_enter"
	CommandChannelExit    CommandType = "channel_exit"
	CommandResetHistory   CommandType = "reset_history"
	CommandMetaData       CommandType = "channel_meta_data"
	CommandMetaCounters   CommandType = "channel_meta_counters"
	CommandBanUser        CommandType = "ban"
	CommandUnbanUser      CommandType = "unban"
	CommandMuteUser       CommandType = "mute"
	CommandUnmuteUser     CommandType = "unmute"
	CommandOperators      CommandType = "operators"
	CommandUserList       CommandType = "user_list"
	CommandUserUpdate     CommandType = "user_update"
	CommandUserMetaData   CommandType = "user_meta_data"
	CommandBlockUser      CommandType = "user_block"
	CommandUnblockUser    CommandType = "user_unblock"
	CommandInvitePref     CommandType = "invitation_preference"
	CommandPushRegister   CommandType = "push_register"
	CommandPushUnregister CommandType = "push_unregister"
	CommandUnreadCount    CommandType = "unread_count"

	CommandEvent       CommandType = "event"
	CommandReadReceipt CommandType = "read_receipt"
	CommandError       CommandType = "error"
)

// Command wraps every payload sent over the wire. Client-initiated
// commands carry a request ID which the server echoes in its reply;
// server pushes carry none.
type Command struct {
	Type      CommandType     `json:"cmd"`
	RequestID string          `json:"req_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// IsReply reports whether the command resolves an outstanding request.
func (c Command) IsReply() bool {
	return c.RequestID != ""
}

// ErrorPayload is embedded in reply payloads; a nonzero code marks a
// server-reported failure and the rest of the payload is undefined.
type ErrorPayload struct {
	Code    int64  `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
