package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/DriftChat/internal/protocol"
)

// Channel is the common view over group and open channels. Events that
// apply to both kinds deliver a Channel; type-switch on the concrete
// *GroupChannel or *OpenChannel when the kind matters.
type Channel interface {
	ChannelURL() string
	ChannelKind() ChannelType
	base() *BaseChannel
}

// BaseChannel carries the state and operations shared by both channel
// kinds. Instances are owned by the client's registry: one live object
// per channel URL, updated in place.
type BaseChannel struct {
	URL         string `json:"channel_url"`
	Name        string `json:"name,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
	Data        string `json:"data,omitempty"`
	CustomType  string `json:"custom_type,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	IsFrozen    bool   `json:"freeze,omitempty"`
	IsEphemeral bool   `json:"is_ephemeral,omitempty"`

	client *Client
	kind   ChannelType
}

func (b *BaseChannel) ChannelURL() string       { return b.URL }
func (b *BaseChannel) ChannelKind() ChannelType { return b.kind }
func (b *BaseChannel) base() *BaseChannel       { return b }

// attach binds a decoded channel to its owning client.
func (b *BaseChannel) attach(client *Client, kind ChannelType) {
	b.client = client
	b.kind = kind
}

// request sends a command whose reply is only checked for success.
func (b *BaseChannel) request(t protocol.CommandType, payload interface{}, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	if b.client == nil {
		fn(NewError(ErrInvalidInitialization, "channel is not attached to a client"))
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		fn(errInvalidParameter(err.Error()))
		return
	}
	b.client.conn.send(protocol.Command{Type: t, Payload: raw},
		func(_ protocol.Command, cmdErr *Error) {
			fn(cmdErr)
		})
}

// requestInto sends a command and decodes the reply payload into out.
func (b *BaseChannel) requestInto(t protocol.CommandType, payload, out interface{}, fn func(*Error)) {
	if b.client == nil {
		fn(NewError(ErrInvalidInitialization, "channel is not attached to a client"))
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		fn(errInvalidParameter(err.Error()))
		return
	}
	b.client.conn.send(protocol.Command{Type: t, Payload: raw},
		func(reply protocol.Command, cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			if err := json.Unmarshal(reply.Payload, out); err != nil {
				fn(NewError(ErrNetworkError, "malformed reply payload"))
				return
			}
			fn(nil)
		})
}

// SendUserMessage sends a text message. The returned message is the
// local pending copy: it carries a request ID and a provisional
// timestamp, and is updated in place once the server acknowledges it.
// The completion receives that same object with its canonical identity,
// or an error.
func (b *BaseChannel) SendUserMessage(params *UserMessageParams, fn func(*Message, *Error)) *Message {
	if fn == nil {
		fn = func(*Message, *Error) {}
	}
	if params == nil || params.message == "" {
		fn(nil, errInvalidParameter("message text is required"))
		return nil
	}
	pending := b.newPendingMessage(MessageTypeUser)
	pending.Message = params.message
	pending.Data = params.data
	pending.CustomType = params.customType
	pending.MentionType = params.mentionType
	pending.MentionedUserIDs = params.mentionedUserIDs
	pending.TargetLanguages = params.targetLanguages
	pending.MetaArrayKeys = params.metaArrayKeys
	pending.PushOption = params.pushOption
	b.sendMessage(protocol.CommandUserMessage, pending, fn)
	return pending
}

// SendFileMessage sends a file message referencing an already uploaded
// URL, with the same pending-copy contract as SendUserMessage.
func (b *BaseChannel) SendFileMessage(params *FileMessageParams, fn func(*Message, *Error)) *Message {
	if fn == nil {
		fn = func(*Message, *Error) {}
	}
	if params == nil || params.fileURL == "" {
		fn(nil, errInvalidParameter("file URL is required"))
		return nil
	}
	pending := b.newPendingMessage(MessageTypeFile)
	pending.Data = params.data
	pending.CustomType = params.customType
	pending.File = &FileInfo{
		URL:  params.fileURL,
		Name: params.fileName,
		Type: params.fileType,
		Size: params.fileSize,
	}
	b.sendMessage(protocol.CommandFileMessage, pending, fn)
	return pending
}

// CopyUserMessage resends a delivered user message to the target
// channel. The copy is a fresh send with its own identity.
func (b *BaseChannel) CopyUserMessage(msg *Message, target Channel, fn func(*Message, *Error)) *Message {
	if fn == nil {
		fn = func(*Message, *Error) {}
	}
	if msg == nil || msg.Type != MessageTypeUser || msg.MessageID == 0 {
		fn(nil, errInvalidParameter("a delivered user message is required"))
		return nil
	}
	if target == nil {
		fn(nil, errInvalidParameter("target channel is required"))
		return nil
	}
	params := NewUserMessageParams(msg.Message)
	params.data = msg.Data
	params.customType = msg.CustomType
	return target.base().SendUserMessage(params, fn)
}

// CopyFileMessage resends a delivered file message to the target
// channel.
func (b *BaseChannel) CopyFileMessage(msg *Message, target Channel, fn func(*Message, *Error)) *Message {
	if fn == nil {
		fn = func(*Message, *Error) {}
	}
	if msg == nil || msg.Type != MessageTypeFile || msg.MessageID == 0 || msg.File == nil {
		fn(nil, errInvalidParameter("a delivered file message is required"))
		return nil
	}
	if target == nil {
		fn(nil, errInvalidParameter("target channel is required"))
		return nil
	}
	params := NewFileMessageParams(msg.File.URL)
	params.fileName = msg.File.Name
	params.fileType = msg.File.Type
	params.fileSize = msg.File.Size
	params.data = msg.Data
	params.customType = msg.CustomType
	return target.base().SendFileMessage(params, fn)
}

func (b *BaseChannel) newPendingMessage(t MessageType) *Message {
	m := &Message{
		Type:        t,
		RequestID:   uuid.NewString(),
		ChannelURL:  b.URL,
		ChannelType: b.kind,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if b.client != nil {
		m.Sender = b.client.CurrentUser()
	}
	return m
}

func (b *BaseChannel) sendMessage(t protocol.CommandType, pending *Message, fn func(*Message, *Error)) {
	if b.client == nil {
		fn(nil, NewError(ErrInvalidInitialization, "channel is not attached to a client"))
		return
	}
	raw, err := json.Marshal(pending)
	if err != nil {
		fn(nil, errInvalidParameter(err.Error()))
		return
	}
	b.client.registry.UpsertMessage(pending)
	b.client.conn.send(
		protocol.Command{Type: t, RequestID: pending.RequestID, Payload: raw},
		func(reply protocol.Command, cmdErr *Error) {
			if cmdErr != nil {
				fn(nil, cmdErr)
				return
			}
			var acked Message
			if err := json.Unmarshal(reply.Payload, &acked); err != nil {
				fn(nil, NewError(ErrNetworkError, "malformed message reply"))
				return
			}
			canonical := b.client.registry.UpsertMessage(&acked)
			fn(canonical, nil)
		})
}

// UpdateUserMessage rewrites the text, data or custom type of a sent
// message.
func (b *BaseChannel) UpdateUserMessage(messageID int64, params *UserMessageParams, fn func(*Message, *Error)) {
	if fn == nil {
		fn = func(*Message, *Error) {}
	}
	if messageID == 0 {
		fn(nil, errInvalidParameter("message ID is required"))
		return
	}
	if params == nil {
		fn(nil, errInvalidParameter("params are required"))
		return
	}
	update := &Message{
		Type:        MessageTypeUser,
		MessageID:   messageID,
		ChannelURL:  b.URL,
		ChannelType: b.kind,
		Message:     params.message,
		Data:        params.data,
		CustomType:  params.customType,
	}
	var acked Message
	b.requestInto(protocol.CommandUpdateMessage, update, &acked, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(nil, cmdErr)
			return
		}
		fn(b.client.registry.UpsertMessage(&acked), nil)
	})
}

// UpdateFileMessage rewrites the data or custom type of a sent file
// message. The file itself is immutable once delivered.
func (b *BaseChannel) UpdateFileMessage(messageID int64, params *FileMessageParams, fn func(*Message, *Error)) {
	if fn == nil {
		fn = func(*Message, *Error) {}
	}
	if messageID == 0 {
		fn(nil, errInvalidParameter("message ID is required"))
		return
	}
	if params == nil {
		fn(nil, errInvalidParameter("params are required"))
		return
	}
	update := &Message{
		Type:        MessageTypeFile,
		MessageID:   messageID,
		ChannelURL:  b.URL,
		ChannelType: b.kind,
		Data:        params.data,
		CustomType:  params.customType,
	}
	var acked Message
	b.requestInto(protocol.CommandUpdateMessage, update, &acked, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(nil, cmdErr)
			return
		}
		fn(b.client.registry.UpsertMessage(&acked), nil)
	})
}

// DeleteMessage removes a message from the channel.
func (b *BaseChannel) DeleteMessage(messageID int64, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	if messageID == 0 {
		fn(errInvalidParameter("message ID is required"))
		return
	}
	req := messageDeleteRequest{ChannelURL: b.URL, ChannelType: b.kind, MessageID: messageID}
	b.request(protocol.CommandDeleteMessage, req, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(cmdErr)
			return
		}
		b.client.registry.RemoveMessage(messageID)
		fn(nil)
	})
}

// MessageListParams tunes a history fetch around an anchor point.
type MessageListParams struct {
	PrevLimit        int
	NextLimit        int
	Inclusive        bool
	Reverse          bool
	MessageType      MessageTypeFilter
	CustomType       string
	SenderUserIDs    []string
	IncludeMetaArray bool
}

// GetMessagesByTimestamp fetches the history window around the given
// timestamp in milliseconds.
func (b *BaseChannel) GetMessagesByTimestamp(timestamp int64, params MessageListParams, fn func([]*Message, *Error)) {
	req := b.newListRequest(params)
	req.Timestamp = &timestamp
	b.fetchMessages(req, fn)
}

// GetMessagesByID fetches the history window around the given message.
func (b *BaseChannel) GetMessagesByID(messageID int64, params MessageListParams, fn func([]*Message, *Error)) {
	req := b.newListRequest(params)
	req.MessageID = &messageID
	b.fetchMessages(req, fn)
}

// GetPreviousMessagesByTimestamp fetches up to limit messages strictly
// older than the timestamp, newest first when reverse is set.
func (b *BaseChannel) GetPreviousMessagesByTimestamp(timestamp int64, limit int, reverse bool, fn func([]*Message, *Error)) {
	b.GetMessagesByTimestamp(timestamp, MessageListParams{PrevLimit: limit, Reverse: reverse}, fn)
}

// GetNextMessagesByTimestamp fetches up to limit messages strictly
// newer than the timestamp.
func (b *BaseChannel) GetNextMessagesByTimestamp(timestamp int64, limit int, reverse bool, fn func([]*Message, *Error)) {
	b.GetMessagesByTimestamp(timestamp, MessageListParams{NextLimit: limit, Reverse: reverse}, fn)
}

func (b *BaseChannel) newListRequest(params MessageListParams) messageListRequest {
	return messageListRequest{
		ChannelURL:       b.URL,
		ChannelType:      b.kind,
		PrevLimit:        params.PrevLimit,
		NextLimit:        params.NextLimit,
		Inclusive:        params.Inclusive,
		Reverse:          params.Reverse,
		MessageType:      params.MessageType,
		CustomType:       params.CustomType,
		SenderUserIDs:    params.SenderUserIDs,
		IncludeMetaArray: params.IncludeMetaArray,
	}
}

func (b *BaseChannel) fetchMessages(req messageListRequest, fn func([]*Message, *Error)) {
	if fn == nil {
		fn = func([]*Message, *Error) {}
	}
	var resp messageListResponse
	b.requestInto(protocol.CommandMessageList, req, &resp, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(nil, cmdErr)
			return
		}
		fn(b.client.internMessages(resp.Messages), nil)
	})
}

// CreateMessageMetaArrayKeys adds empty meta arrays under the given
// keys to a message.
func (b *BaseChannel) CreateMessageMetaArrayKeys(messageID int64, keys []string, fn func(*Message, *Error)) {
	b.mutateMetaArray(messageID, metaArrayRequest{Operation: "create", Keys: keys}, fn)
}

// AddMessageMetaArrayValues appends values to a message's meta arrays.
func (b *BaseChannel) AddMessageMetaArrayValues(messageID int64, values map[string][]string, fn func(*Message, *Error)) {
	b.mutateMetaArray(messageID, metaArrayRequest{Operation: "add", MetaArrays: values}, fn)
}

// RemoveMessageMetaArrayValues removes values from a message's meta
// arrays.
func (b *BaseChannel) RemoveMessageMetaArrayValues(messageID int64, values map[string][]string, fn func(*Message, *Error)) {
	b.mutateMetaArray(messageID, metaArrayRequest{Operation: "remove", MetaArrays: values}, fn)
}

// DeleteMessageMetaArrayKeys drops entire meta arrays from a message.
func (b *BaseChannel) DeleteMessageMetaArrayKeys(messageID int64, keys []string, fn func(*Message, *Error)) {
	b.mutateMetaArray(messageID, metaArrayRequest{Operation: "delete", Keys: keys}, fn)
}

func (b *BaseChannel) mutateMetaArray(messageID int64, req metaArrayRequest, fn func(*Message, *Error)) {
	if fn == nil {
		fn = func(*Message, *Error) {}
	}
	if messageID == 0 {
		fn(nil, errInvalidParameter("message ID is required"))
		return
	}
	req.ChannelURL = b.URL
	req.ChannelType = b.kind
	req.MessageID = messageID
	var acked Message
	b.requestInto(protocol.CommandMetaArray, req, &acked, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(nil, cmdErr)
			return
		}
		fn(b.client.registry.UpsertMessage(&acked), nil)
	})
}

// CreateMetaData stores new key-value pairs on the channel.
func (b *BaseChannel) CreateMetaData(data map[string]string, fn func(map[string]string, *Error)) {
	b.mutateMetaData(metaDataRequest{Operation: "create", Data: data}, fn)
}

// UpdateMetaData upserts key-value pairs on the channel.
func (b *BaseChannel) UpdateMetaData(data map[string]string, fn func(map[string]string, *Error)) {
	b.mutateMetaData(metaDataRequest{Operation: "update", Data: data}, fn)
}

// GetMetaData fetches the values of the given keys.
func (b *BaseChannel) GetMetaData(keys []string, fn func(map[string]string, *Error)) {
	b.mutateMetaData(metaDataRequest{Operation: "get", Keys: keys}, fn)
}

// GetAllMetaData fetches every key-value pair on the channel.
func (b *BaseChannel) GetAllMetaData(fn func(map[string]string, *Error)) {
	b.mutateMetaData(metaDataRequest{Operation: "get"}, fn)
}

// DeleteMetaData removes the given keys from the channel.
func (b *BaseChannel) DeleteMetaData(keys []string, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	b.mutateMetaData(metaDataRequest{Operation: "delete", Keys: keys},
		func(_ map[string]string, cmdErr *Error) { fn(cmdErr) })
}

// DeleteAllMetaData removes every key-value pair from the channel.
func (b *BaseChannel) DeleteAllMetaData(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	b.mutateMetaData(metaDataRequest{Operation: "delete_all"},
		func(_ map[string]string, cmdErr *Error) { fn(cmdErr) })
}

func (b *BaseChannel) mutateMetaData(req metaDataRequest, fn func(map[string]string, *Error)) {
	if fn == nil {
		fn = func(map[string]string, *Error) {}
	}
	req.ChannelURL = b.URL
	req.ChannelType = b.kind
	var resp metaDataResponse
	b.requestInto(protocol.CommandMetaData, req, &resp, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(nil, cmdErr)
			return
		}
		fn(resp.MetaData, nil)
	})
}

// CreateMetaCounters stores new integer counters on the channel.
func (b *BaseChannel) CreateMetaCounters(counters map[string]int64, fn func(map[string]int64, *Error)) {
	b.mutateMetaCounters(metaCountersRequest{Operation: "create", Counters: counters}, fn)
}

// UpdateMetaCounters sets counters to the given values.
func (b *BaseChannel) UpdateMetaCounters(counters map[string]int64, fn func(map[string]int64, *Error)) {
	b.mutateMetaCounters(metaCountersRequest{Operation: "update", Counters: counters}, fn)
}

// IncreaseMetaCounters adds the given deltas to counters.
func (b *BaseChannel) IncreaseMetaCounters(counters map[string]int64, fn func(map[string]int64, *Error)) {
	b.mutateMetaCounters(metaCountersRequest{Operation: "increase", Counters: counters}, fn)
}

// DecreaseMetaCounters subtracts the given deltas from counters.
func (b *BaseChannel) DecreaseMetaCounters(counters map[string]int64, fn func(map[string]int64, *Error)) {
	b.mutateMetaCounters(metaCountersRequest{Operation: "decrease", Counters: counters}, fn)
}

// GetMetaCounters fetches the given counters.
func (b *BaseChannel) GetMetaCounters(keys []string, fn func(map[string]int64, *Error)) {
	b.mutateMetaCounters(metaCountersRequest{Operation: "get", Keys: keys}, fn)
}

// GetAllMetaCounters fetches every counter on the channel.
func (b *BaseChannel) GetAllMetaCounters(fn func(map[string]int64, *Error)) {
	b.mutateMetaCounters(metaCountersRequest{Operation: "get"}, fn)
}

// DeleteMetaCounters removes the given counters from the channel.
func (b *BaseChannel) DeleteMetaCounters(keys []string, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	b.mutateMetaCounters(metaCountersRequest{Operation: "delete", Keys: keys},
		func(_ map[string]int64, cmdErr *Error) { fn(cmdErr) })
}

// DeleteAllMetaCounters removes every counter from the channel.
func (b *BaseChannel) DeleteAllMetaCounters(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	b.mutateMetaCounters(metaCountersRequest{Operation: "delete_all"},
		func(_ map[string]int64, cmdErr *Error) { fn(cmdErr) })
}

func (b *BaseChannel) mutateMetaCounters(req metaCountersRequest, fn func(map[string]int64, *Error)) {
	if fn == nil {
		fn = func(map[string]int64, *Error) {}
	}
	req.ChannelURL = b.URL
	req.ChannelType = b.kind
	var resp metaCountersResponse
	b.requestInto(protocol.CommandMetaCounters, req, &resp, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(nil, cmdErr)
			return
		}
		fn(resp.MetaCounters, nil)
	})
}

// AddOperators grants operator status to the given users.
func (b *BaseChannel) AddOperators(userIDs []string, fn func(*Error)) {
	b.mutateOperators(operatorsRequest{Operation: "add", UserIDs: userIDs}, fn)
}

// RemoveOperators revokes operator status from the given users.
func (b *BaseChannel) RemoveOperators(userIDs []string, fn func(*Error)) {
	b.mutateOperators(operatorsRequest{Operation: "remove", UserIDs: userIDs}, fn)
}

// RemoveAllOperators revokes operator status from everyone but the
// channel's creator-assigned operators on the server side.
func (b *BaseChannel) RemoveAllOperators(fn func(*Error)) {
	b.mutateOperators(operatorsRequest{Operation: "remove_all"}, fn)
}

func (b *BaseChannel) mutateOperators(req operatorsRequest, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	if req.Operation != "remove_all" && len(req.UserIDs) == 0 {
		fn(errInvalidParameter("user IDs are required"))
		return
	}
	req.ChannelURL = b.URL
	req.ChannelType = b.kind
	b.request(protocol.CommandOperators, req, fn)
}

// BanUser expels a user and blocks rejoining for the given number of
// seconds; zero or negative means forever.
func (b *BaseChannel) BanUser(userID string, seconds int, description string, fn func(*Error)) {
	b.moderate(protocol.CommandBanUser, userID, seconds, description, fn)
}

// UnbanUser lifts a ban.
func (b *BaseChannel) UnbanUser(userID string, fn func(*Error)) {
	b.moderate(protocol.CommandUnbanUser, userID, 0, "", fn)
}

// MuteUser prevents a user from sending messages in the channel.
func (b *BaseChannel) MuteUser(userID string, seconds int, description string, fn func(*Error)) {
	b.moderate(protocol.CommandMuteUser, userID, seconds, description, fn)
}

// UnmuteUser lifts a mute.
func (b *BaseChannel) UnmuteUser(userID string, fn func(*Error)) {
	b.moderate(protocol.CommandUnmuteUser, userID, 0, "", fn)
}

func (b *BaseChannel) moderate(t protocol.CommandType, userID string, seconds int, description string, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	if userID == "" {
		fn(errInvalidParameter("user ID is required"))
		return
	}
	req := moderationRequest{
		ChannelURL:  b.URL,
		ChannelType: b.kind,
		UserID:      userID,
		Seconds:     seconds,
		Description: description,
	}
	b.request(t, req, fn)
}

// CreateOperatorListQuery returns a paginated query over the channel's
// operators.
func (b *BaseChannel) CreateOperatorListQuery() *UserListQuery {
	return newUserListQuery(b.client, userListRequest{
		Kind:        "operator",
		ChannelURL:  b.URL,
		ChannelType: b.kind,
	})
}

// CreatePreviousMessageListQuery returns a paginated query walking the
// channel's history backwards from the newest message.
func (b *BaseChannel) CreatePreviousMessageListQuery() *PreviousMessageListQuery {
	return newPreviousMessageListQuery(b.client, b.URL, b.kind)
}
