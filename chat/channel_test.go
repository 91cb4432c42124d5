package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/DriftChat/internal/protocol"
)

type channelRecorder struct {
	ChannelHandlerAdapter
	mu       sync.Mutex
	received []*Message
	typing   int
	receipts int
	changed  int
	hidden   int
	invites  int
	deleted  []int64
}

func (r *channelRecorder) MessageReceived(_ Channel, m *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, m)
}

func (r *channelRecorder) MessageDeleted(_ Channel, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
}

func (r *channelRecorder) TypingStatusUpdated(*GroupChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing++
}

func (r *channelRecorder) ReadReceiptUpdated(*GroupChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts++
}

func (r *channelRecorder) ChannelChanged(Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed++
}

func (r *channelRecorder) ChannelHidden(*GroupChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hidden++
}

func (r *channelRecorder) InvitationReceived(*GroupChannel, []User, *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invites++
}

func (r *channelRecorder) receivedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

// The pending message returned by SendUserMessage is the same object
// the completion delivers, upgraded in place with the server identity.
func TestSendUserMessagePendingIdentity(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	done := make(chan *Message, 1)
	pending := ch.SendUserMessage(NewUserMessageParams("hello"), func(m *Message, err *Error) {
		require.Nil(t, err)
		done <- m
	})
	require.NotNil(t, pending)
	require.NotEmpty(t, pending.RequestID)
	require.Zero(t, pending.MessageID)
	require.Equal(t, "alice", pending.Sender.UserID)

	req := awaitCommand(t, tr, protocol.CommandUserMessage)
	require.Equal(t, pending.RequestID, req.RequestID)
	tr.reply(t, req, Message{
		Type:       MessageTypeUser,
		MessageID:  101,
		RequestID:  pending.RequestID,
		ChannelURL: "c1",
		Message:    "hello",
		CreatedAt:  555,
	})

	select {
	case acked := <-done:
		require.Same(t, pending, acked)
		require.Equal(t, int64(101), pending.MessageID)
		require.Equal(t, int64(555), pending.CreatedAt)
	case <-time.After(2 * time.Second):
		t.Fatal("send never completed")
	}
}

// Every builder option lands on the outgoing frame.
func TestSendUserMessageCarriesOptions(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	params := NewUserMessageParams("hola").
		SetTargetLanguages([]string{"en", "fr"}).
		SetMetaArrayKeys([]string{"reactions"}).
		SetPushOption(PushOptionSuppress).
		SetMentionType(MentionTypeUsers).
		SetMentionedUserIDs([]string{"bob"})
	ch.SendUserMessage(params, nil)

	req := awaitCommand(t, tr, protocol.CommandUserMessage)
	var sent Message
	require.NoError(t, json.Unmarshal(req.Payload, &sent))
	require.Equal(t, []string{"en", "fr"}, sent.TargetLanguages)
	require.Equal(t, []string{"reactions"}, sent.MetaArrayKeys)
	require.Equal(t, PushOptionSuppress, sent.PushOption)
	require.Equal(t, []string{"bob"}, sent.MentionedUserIDs)
}

// A file message without a URL never reaches the wire.
func TestSendFileMessageValidation(t *testing.T) {
	client, spool := newTestClient(t)
	connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	var got *Error
	pending := ch.SendFileMessage(NewFileMessageParams(""), func(_ *Message, err *Error) { got = err })
	require.Nil(t, pending)
	require.NotNil(t, got)
	require.Equal(t, ErrInvalidParameter, got.Code)
}

// A pushed message reaches handlers once, bumps the unread count and
// becomes the channel's last message. A redelivery of the same ID is
// dropped.
func TestMessagePushAndDedup(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	rec := &channelRecorder{}
	client.AddChannelHandler("test", rec)

	push := Message{
		Type:        MessageTypeUser,
		MessageID:   200,
		ChannelURL:  "c1",
		ChannelType: ChannelTypeGroup,
		Sender:      &User{UserID: "bob"},
		Message:     "hi",
		CreatedAt:   1000,
	}
	tr.push(t, protocol.CommandUserMessage, push)
	tr.push(t, protocol.CommandUserMessage, push)

	require.Equal(t, 1, rec.receivedCount())
	require.Equal(t, 1, ch.GetUnreadMessageCount())
	require.NotNil(t, ch.GetLastMessage())
	require.Equal(t, int64(200), ch.GetLastMessage().MessageID)
}

// The local user's own echoed message does not count as unread.
func TestOwnMessagePushNotUnread(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	tr.push(t, protocol.CommandUserMessage, Message{
		Type:        MessageTypeUser,
		MessageID:   201,
		ChannelURL:  "c1",
		ChannelType: ChannelTypeGroup,
		Sender:      &User{UserID: "alice"},
		Message:     "mine",
	})
	require.Zero(t, ch.GetUnreadMessageCount())
}

// A new message on an auto-unhide hidden channel unhides it.
func TestMessagePushAutoUnhide(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})
	ch.HiddenState = HiddenStateAllowAutoUnhide

	rec := &channelRecorder{}
	client.AddChannelHandler("test", rec)

	tr.push(t, protocol.CommandUserMessage, Message{
		Type:        MessageTypeUser,
		MessageID:   202,
		ChannelURL:  "c1",
		ChannelType: ChannelTypeGroup,
		Sender:      &User{UserID: "bob"},
	})
	require.Equal(t, HiddenStateUnhidden, ch.GetHiddenState())
	require.Equal(t, 1, rec.changed)
}

// Hidden with prevent-auto-unhide, a channel stays hidden through new
// messages.
func TestMessagePushKeepsPreventAutoUnhide(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})
	ch.HiddenState = HiddenStatePreventAutoUnhide

	tr.push(t, protocol.CommandUserMessage, Message{
		Type:        MessageTypeUser,
		MessageID:   203,
		ChannelURL:  "c1",
		ChannelType: ChannelTypeGroup,
		Sender:      &User{UserID: "bob"},
	})
	require.Equal(t, HiddenStatePreventAutoUnhide, ch.GetHiddenState())
	require.True(t, ch.IsHidden())
}

// Read receipts advance monotonically; stale receipts neither mutate
// state nor reach handlers.
func TestReadReceiptMonotonic(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	rec := &channelRecorder{}
	client.AddChannelHandler("test", rec)

	tr.push(t, protocol.CommandReadReceipt, readReceiptEvent{ChannelURL: "c1", UserID: "bob", Timestamp: 500})
	tr.push(t, protocol.CommandReadReceipt, readReceiptEvent{ChannelURL: "c1", UserID: "bob", Timestamp: 400})
	tr.push(t, protocol.CommandReadReceipt, readReceiptEvent{ChannelURL: "c1", UserID: "bob", Timestamp: 600})

	require.Equal(t, 2, rec.receipts)
}

// GetUnreadMemberCount counts joined members behind the message,
// never the sender or the local user.
func TestGetUnreadMemberCount(t *testing.T) {
	client, spool := newTestClient(t)
	connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{
		BaseChannel: BaseChannel{URL: "c1"},
		Members: []Member{
			{User: User{UserID: "alice"}, State: MemberStateJoined},
			{User: User{UserID: "bob"}, State: MemberStateJoined},
			{User: User{UserID: "carol"}, State: MemberStateJoined},
			{User: User{UserID: "dave"}, State: MemberStateInvited},
		},
	})
	msg := &Message{MessageID: 7, CreatedAt: 100, Sender: &User{UserID: "bob"}}

	// Nobody read anything yet: only carol counts.
	require.Equal(t, 1, ch.GetUnreadMemberCount(msg))

	ch.applyReadReceipt("carol", 150)
	require.Equal(t, 0, ch.GetUnreadMemberCount(msg))
}

// Typing events maintain a roster keyed by user and never include the
// local user.
func TestTypingRoster(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	tr.push(t, protocol.CommandTypingStart, typingEvent{ChannelURL: "c1", User: User{UserID: "bob"}})
	tr.push(t, protocol.CommandTypingStart, typingEvent{ChannelURL: "c1", User: User{UserID: "alice"}})
	require.True(t, ch.IsTyping())
	require.Len(t, ch.GetTypingUsers(), 1)

	tr.push(t, protocol.CommandTypingEnd, typingEvent{ChannelURL: "c1", User: User{UserID: "bob"}})
	require.False(t, ch.IsTyping())
}

// MarkAsRead is throttled client-side.
func TestMarkAsReadRateLimit(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})
	ch.UnreadMessageCount = 3

	first := make(chan *Error, 1)
	ch.MarkAsRead(func(err *Error) { first <- err })

	var second *Error
	ch.MarkAsRead(func(err *Error) { second = err })
	require.NotNil(t, second)
	require.Equal(t, ErrMarkAsReadRateLimitExceeded, second.Code)

	req := awaitCommand(t, tr, protocol.CommandMarkAsRead)
	tr.reply(t, req, struct{}{})
	select {
	case err := <-first:
		require.Nil(t, err)
		require.Zero(t, ch.GetUnreadMessageCount())
	case <-time.After(2 * time.Second):
		t.Fatal("mark as read never completed")
	}
}

// Hide flips the tri-state according to the auto-unhide choice.
func TestHideTriState(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	done := make(chan struct{})
	ch.Hide(true, false, func(err *Error) {
		require.Nil(t, err)
		close(done)
	})
	req := awaitCommand(t, tr, protocol.CommandChannelHide)
	tr.reply(t, req, struct{}{})
	<-done
	require.Equal(t, HiddenStatePreventAutoUnhide, ch.GetHiddenState())
	require.Zero(t, ch.GetUnreadMessageCount())
}

// A delete push removes the message from the cache and reaches
// handlers.
func TestMessageDeletePush(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})
	client.registry.UpsertMessage(&Message{MessageID: 300, ChannelURL: "c1"})

	rec := &channelRecorder{}
	client.AddChannelHandler("test", rec)

	tr.push(t, protocol.CommandDeleteMessage, messageDeleteEvent{
		ChannelURL: "c1", ChannelType: ChannelTypeGroup, MessageID: 300,
	})
	require.Equal(t, []int64{300}, rec.deleted)
	_, ok := client.registry.MessageByID(300)
	require.False(t, ok)
}

// An invitation event carrying a channel snapshot hydrates the cache
// before handlers run.
func TestInvitationEventHydratesChannel(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")

	rec := &channelRecorder{}
	client.AddChannelHandler("test", rec)

	tr.push(t, protocol.CommandEvent, map[string]interface{}{
		"cat":          eventInvited,
		"channel_url":  "c9",
		"channel_type": ChannelTypeGroup,
		"channel":      GroupChannel{BaseChannel: BaseChannel{URL: "c9", Name: "team"}},
		"users":        []User{{UserID: "alice"}},
		"inviter":      &User{UserID: "bob"},
	})

	require.Equal(t, 1, rec.invites)
	ch, ok := client.registry.GroupChannel("c9")
	require.True(t, ok)
	require.Equal(t, "team", ch.Name)
}

// Read receipts partition the joined members into read and unread
// sets, always excluding the local user and the sender.
func TestReadMemberPartition(t *testing.T) {
	client, spool := newTestClient(t)
	connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{
		BaseChannel: BaseChannel{URL: "c1"},
		Members: []Member{
			{User: User{UserID: "alice"}, State: MemberStateJoined},
			{User: User{UserID: "bob"}, State: MemberStateJoined},
			{User: User{UserID: "carol"}, State: MemberStateJoined},
			{User: User{UserID: "dave"}, State: MemberStateJoined},
			{User: User{UserID: "erin"}, State: MemberStateInvited},
		},
	})
	msg := &Message{MessageID: 7, CreatedAt: 100, Sender: &User{UserID: "bob"}}
	ch.applyReadReceipt("carol", 150)

	read := ch.GetReadMembers(msg)
	require.Len(t, read, 1)
	require.Equal(t, "carol", read[0].UserID)

	unread := ch.GetUnreadMembers(msg)
	require.Len(t, unread, 1)
	require.Equal(t, "dave", unread[0].UserID)

	require.Equal(t, int64(150), ch.GetLastSeenAt("carol"))
	require.Zero(t, ch.GetLastSeenAt("dave"))
	require.True(t, ch.HasMember("erin"))
	require.False(t, ch.HasMember("mallory"))
}

// Copying a delivered message is a fresh send into the target channel.
func TestCopyUserMessage(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	src := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})
	dst := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c2"}})

	delivered := &Message{
		Type: MessageTypeUser, MessageID: 42, ChannelURL: "c1",
		Message: "hello", CustomType: "greeting",
	}
	pending := src.CopyUserMessage(delivered, dst, nil)
	require.NotNil(t, pending)
	require.Equal(t, "c2", pending.ChannelURL)

	req := awaitCommand(t, tr, protocol.CommandUserMessage)
	var sent Message
	require.NoError(t, json.Unmarshal(req.Payload, &sent))
	require.Equal(t, "c2", sent.ChannelURL)
	require.Equal(t, "hello", sent.Message)
	require.Equal(t, "greeting", sent.CustomType)

	var copyErr *Error
	src.CopyUserMessage(pending, dst, func(_ *Message, err *Error) { copyErr = err })
	require.NotNil(t, copyErr)
	require.Equal(t, ErrInvalidParameter, copyErr.Code)
}

// Updating a file message rewrites its data and folds the ack into the
// registry copy.
func TestUpdateFileMessage(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	done := make(chan *Message, 1)
	ch.UpdateFileMessage(55, NewFileMessageParams("https://files/x").SetData("v2"),
		func(m *Message, err *Error) {
			require.Nil(t, err)
			done <- m
		})
	req := awaitCommand(t, tr, protocol.CommandUpdateMessage)
	tr.reply(t, req, Message{
		Type: MessageTypeFile, MessageID: 55, ChannelURL: "c1", Data: "v2",
	})

	select {
	case m := <-done:
		require.Equal(t, "v2", m.Data)
		canonical, ok := client.registry.MessageByID(55)
		require.True(t, ok)
		require.Same(t, canonical, m)
	case <-time.After(2 * time.Second):
		t.Fatal("update never completed")
	}
}

// A history window is delivered whole even when timestamp ties push it
// past the requested limit; the client never trims a reply.
func TestHistoryWindowKeepsTimestampTies(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	done := make(chan []*Message, 1)
	ch.GetMessagesByTimestamp(1000, MessageListParams{PrevLimit: 2}, func(msgs []*Message, err *Error) {
		require.Nil(t, err)
		done <- msgs
	})
	req := awaitCommand(t, tr, protocol.CommandMessageList)
	tr.reply(t, req, messageListResponse{Messages: []Message{
		{MessageID: 1, ChannelURL: "c1", CreatedAt: 900},
		{MessageID: 2, ChannelURL: "c1", CreatedAt: 950},
		{MessageID: 3, ChannelURL: "c1", CreatedAt: 950},
	}})

	select {
	case msgs := <-done:
		require.Len(t, msgs, 3)
		canonical, ok := client.registry.MessageByID(3)
		require.True(t, ok)
		require.Same(t, canonical, msgs[2])
	case <-time.After(2 * time.Second):
		t.Fatal("history fetch never completed")
	}
}

// Fetching a cached channel through the wrong typed getter is refused
// without touching the network.
func TestGetChannelWrongType(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	client.internOpenChannel(&OpenChannel{BaseChannel: BaseChannel{URL: "lobby"}})

	frames := len(tr.sentCommands(t))
	var fetchErr *Error
	client.GetGroupChannel("lobby", func(_ *GroupChannel, err *Error) { fetchErr = err })
	require.NotNil(t, fetchErr)
	require.Equal(t, ErrWrongChannelType, fetchErr.Code)
	require.Len(t, tr.sentCommands(t), frames)
}

// Pushed messages arrive on the connection's reader goroutine while
// application code reads channel state; the accessors keep the two
// sides consistent.
func TestConcurrentPushAndChannelRead(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")
	ch := client.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: "c1"}})

	const pushes = 50
	frames := make([][]byte, pushes)
	for i := range frames {
		payload, err := json.Marshal(Message{
			Type:        MessageTypeUser,
			MessageID:   int64(1000 + i),
			ChannelURL:  "c1",
			ChannelType: ChannelTypeGroup,
			Sender:      &User{UserID: "bob"},
			CreatedAt:   int64(1000 + i),
		})
		require.NoError(t, err)
		raw, err := protocol.Marshal(protocol.Command{Type: protocol.CommandUserMessage, Payload: payload})
		require.NoError(t, err)
		frames[i] = raw
	}

	tr.mu.Lock()
	sink := tr.sink
	tr.mu.Unlock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, raw := range frames {
			sink.OnMessage(raw)
		}
	}()
	for i := 0; i < pushes; i++ {
		_ = ch.GetUnreadMessageCount()
		_ = ch.GetLastMessage()
		_ = ch.GetHiddenState()
	}
	<-done

	require.Equal(t, pushes, ch.GetUnreadMessageCount())
	require.Equal(t, int64(1000+pushes-1), ch.GetLastMessage().MessageID)
}
