package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fenggwsx/DriftChat/internal/protocol"
)

// groupRuntime holds per-channel client-side state that survives
// snapshot overwrites: read receipts, the typing roster and the
// mark-as-read throttle.
type groupRuntime struct {
	mu           sync.Mutex
	readStatus   map[string]int64
	typingUsers  map[string]User
	lastMarkRead time.Time
}

func newGroupRuntime() *groupRuntime {
	return &groupRuntime{
		readStatus:  make(map[string]int64),
		typingUsers: make(map[string]User),
	}
}

// GroupChannel is a membership-gated channel with unread tracking,
// read receipts and typing indicators.
type GroupChannel struct {
	BaseChannel

	IsDistinct         bool        `json:"is_distinct,omitempty"`
	IsPublic           bool        `json:"is_public,omitempty"`
	HiddenState        HiddenState `json:"hidden_state,omitempty"`
	Members            []Member    `json:"members,omitempty"`
	MemberCount        int         `json:"member_count"`
	JoinedMemberCount  int         `json:"joined_member_count"`
	UnreadMessageCount int         `json:"unread_message_count"`
	UnreadMentionCount int         `json:"unread_mention_count"`
	LastMessage        *Message    `json:"last_message,omitempty"`
	MyMemberState      MemberState `json:"member_state,omitempty"`
	MyLastRead         int64       `json:"user_last_read,omitempty"`
	InvitedAt          int64       `json:"invited_at,omitempty"`
	JoinedAt           int64       `json:"joined_ts,omitempty"`
	Inviter            *User       `json:"inviter,omitempty"`

	rt *groupRuntime
}

// IsHidden reports whether the channel is currently hidden from the
// local user's channel list.
func (g *GroupChannel) IsHidden() bool {
	return g.GetHiddenState() != HiddenStateUnhidden
}

// overwrite copies every snapshot field of src into g in place,
// preserving g's client binding and runtime state. The runtime lock
// is held across the copy so readers never observe a half-written
// snapshot.
func (g *GroupChannel) overwrite(src *GroupChannel) {
	client, rt := g.client, g.rt
	if rt == nil {
		rt = newGroupRuntime()
	}
	rt.mu.Lock()
	*g = *src
	g.client = client
	g.kind = ChannelTypeGroup
	g.rt = rt
	rt.mu.Unlock()
}

func (g *GroupChannel) runtime() *groupRuntime {
	if g.rt == nil {
		g.rt = newGroupRuntime()
	}
	return g.rt
}

// locked runs fn under the runtime lock. Live fields (unread
// counters, last message, hidden state, membership state) are written
// on the connection's reader goroutine, so concurrent reads go
// through the Get accessors below.
func (g *GroupChannel) locked(fn func()) {
	rt := g.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	fn()
}

// GetUnreadMessageCount returns the local user's unread message count.
func (g *GroupChannel) GetUnreadMessageCount() int {
	var n int
	g.locked(func() { n = g.UnreadMessageCount })
	return n
}

// GetUnreadMentionCount returns the local user's unread mention count.
func (g *GroupChannel) GetUnreadMentionCount() int {
	var n int
	g.locked(func() { n = g.UnreadMentionCount })
	return n
}

// GetLastMessage returns the latest message known for this channel.
func (g *GroupChannel) GetLastMessage() *Message {
	var m *Message
	g.locked(func() { m = g.LastMessage })
	return m
}

// GetHiddenState returns the channel's hidden state.
func (g *GroupChannel) GetHiddenState() HiddenState {
	var s HiddenState
	g.locked(func() { s = g.HiddenState })
	return s
}

// GetMyMemberState returns the local user's membership state.
func (g *GroupChannel) GetMyMemberState() MemberState {
	var s MemberState
	g.locked(func() { s = g.MyMemberState })
	return s
}

// GetMyLastRead returns the local user's last read timestamp.
func (g *GroupChannel) GetMyLastRead() int64 {
	var ts int64
	g.locked(func() { ts = g.MyLastRead })
	return ts
}

// recordMessage folds a pushed message into the channel's live state.
func (g *GroupChannel) recordMessage(m *Message, unread, mention bool) {
	g.locked(func() {
		g.LastMessage = m
		if unread {
			g.UnreadMessageCount++
		}
		if mention {
			g.UnreadMentionCount++
		}
	})
}

// consumeAutoUnhide flips an auto-unhide hidden state back to visible
// and reports whether a transition happened.
func (g *GroupChannel) consumeAutoUnhide() bool {
	var unhidden bool
	g.locked(func() {
		if g.HiddenState == HiddenStateAllowAutoUnhide {
			g.HiddenState = HiddenStateUnhidden
			unhidden = true
		}
	})
	return unhidden
}

// markHidden records a server-initiated hide. An explicit
// prevent-auto-unhide set through Hide is kept as is.
func (g *GroupChannel) markHidden() {
	g.locked(func() {
		if g.HiddenState == HiddenStateUnhidden {
			g.HiddenState = HiddenStateAllowAutoUnhide
		}
	})
}

func (g *GroupChannel) setFrozen(frozen bool) {
	g.locked(func() { g.IsFrozen = frozen })
}

// GetIsFrozen reports whether the channel is frozen.
func (g *GroupChannel) GetIsFrozen() bool {
	var frozen bool
	g.locked(func() { frozen = g.IsFrozen })
	return frozen
}

// Refresh refetches the channel snapshot from the server.
func (g *GroupChannel) Refresh(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	var snap GroupChannel
	g.requestInto(protocol.CommandChannelGet,
		channelURLRequest{ChannelURL: g.URL, ChannelType: ChannelTypeGroup},
		&snap, func(cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			g.client.internGroupChannel(&snap)
			fn(nil)
		})
}

// GroupChannelUpdateParams collects the mutable channel fields; nil
// pointers leave the server value untouched.
type GroupChannelUpdateParams struct {
	Name            *string
	CoverURL        *string
	Data            *string
	CustomType      *string
	IsDistinct      *bool
	OperatorUserIDs []string
}

// Update applies the given field changes to the channel.
func (g *GroupChannel) Update(params GroupChannelUpdateParams, fn func(*GroupChannel, *Error)) {
	if fn == nil {
		fn = func(*GroupChannel, *Error) {}
	}
	req := channelUpdateRequest{
		ChannelType:     ChannelTypeGroup,
		ChannelURL:      g.URL,
		Name:            params.Name,
		CoverURL:        params.CoverURL,
		Data:            params.Data,
		CustomType:      params.CustomType,
		IsDistinct:      params.IsDistinct,
		OperatorUserIDs: params.OperatorUserIDs,
	}
	var snap GroupChannel
	g.requestInto(protocol.CommandChannelUpdate, req, &snap, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(nil, cmdErr)
			return
		}
		fn(g.client.internGroupChannel(&snap), nil)
	})
}

// Delete removes the channel entirely. Requires operator status.
func (g *GroupChannel) Delete(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	g.request(protocol.CommandChannelDelete,
		channelURLRequest{ChannelURL: g.URL, ChannelType: ChannelTypeGroup},
		func(cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			g.client.registry.RemoveChannel(g.URL)
			fn(nil)
		})
}

// Invite sends channel invitations to the given users.
func (g *GroupChannel) Invite(userIDs []string, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	if len(userIDs) == 0 {
		fn(errInvalidParameter("user IDs are required"))
		return
	}
	g.request(protocol.CommandChannelInvite,
		inviteRequest{ChannelURL: g.URL, UserIDs: userIDs}, fn)
}

// AcceptInvitation turns the local user's invited membership into a
// joined one.
func (g *GroupChannel) AcceptInvitation(fn func(*Error)) {
	g.request(protocol.CommandAcceptInvite,
		channelURLRequest{ChannelURL: g.URL}, g.membershipResult(MemberStateJoined, fn))
}

// DeclineInvitation rejects a pending invitation.
func (g *GroupChannel) DeclineInvitation(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	g.request(protocol.CommandDeclineInvite,
		channelURLRequest{ChannelURL: g.URL}, func(cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			g.client.registry.RemoveChannel(g.URL)
			fn(nil)
		})
}

// Join enters a public group channel without an invitation.
func (g *GroupChannel) Join(fn func(*Error)) {
	g.request(protocol.CommandChannelJoin,
		channelURLRequest{ChannelURL: g.URL}, g.membershipResult(MemberStateJoined, fn))
}

// Leave withdraws the local user's membership.
func (g *GroupChannel) Leave(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	g.request(protocol.CommandChannelLeave,
		channelURLRequest{ChannelURL: g.URL}, func(cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			g.client.registry.RemoveChannel(g.URL)
			fn(nil)
		})
}

func (g *GroupChannel) membershipResult(state MemberState, fn func(*Error)) func(*Error) {
	if fn == nil {
		fn = func(*Error) {}
	}
	return func(cmdErr *Error) {
		if cmdErr != nil {
			fn(cmdErr)
			return
		}
		g.locked(func() { g.MyMemberState = state })
		fn(nil)
	}
}

// Hide removes the channel from the local user's list until unhidden.
// With allowAutoUnhide set, a new message unhides it automatically.
func (g *GroupChannel) Hide(hidePreviousMessages, allowAutoUnhide bool, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	req := hideRequest{
		ChannelURL:           g.URL,
		HidePreviousMessages: hidePreviousMessages,
		AllowAutoUnhide:      allowAutoUnhide,
	}
	g.request(protocol.CommandChannelHide, req, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(cmdErr)
			return
		}
		g.locked(func() {
			if allowAutoUnhide {
				g.HiddenState = HiddenStateAllowAutoUnhide
			} else {
				g.HiddenState = HiddenStatePreventAutoUnhide
			}
			if hidePreviousMessages {
				g.UnreadMessageCount = 0
				g.UnreadMentionCount = 0
			}
		})
		fn(nil)
	})
}

// Unhide restores the channel to the local user's channel list.
func (g *GroupChannel) Unhide(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	g.request(protocol.CommandChannelUnhide,
		channelURLRequest{ChannelURL: g.URL}, func(cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			g.locked(func() { g.HiddenState = HiddenStateUnhidden })
			fn(nil)
		})
}

// markAsReadMinInterval throttles MarkAsRead client-side.
const markAsReadMinInterval = time.Second

// MarkAsRead reports every message in the channel as read by the local
// user. Calls arriving faster than once per second fail with
// ErrMarkAsReadRateLimitExceeded.
func (g *GroupChannel) MarkAsRead(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	rt := g.runtime()
	rt.mu.Lock()
	now := time.Now()
	if now.Sub(rt.lastMarkRead) < markAsReadMinInterval {
		rt.mu.Unlock()
		fn(NewError(ErrMarkAsReadRateLimitExceeded, "mark as read rate limit exceeded"))
		return
	}
	rt.lastMarkRead = now
	rt.mu.Unlock()

	g.request(protocol.CommandMarkAsRead,
		channelURLRequest{ChannelURL: g.URL}, func(cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			g.locked(func() {
				g.UnreadMessageCount = 0
				g.UnreadMentionCount = 0
				g.MyLastRead = now.UnixMilli()
			})
			fn(nil)
		})
}

// ResetMyHistory clears the local user's view of the channel history;
// messages sent before the reset point are no longer returned to them.
func (g *GroupChannel) ResetMyHistory(fn func(*Error)) {
	g.request(protocol.CommandResetHistory,
		channelURLRequest{ChannelURL: g.URL}, fn)
}

// StartTyping signals that the local user began composing a message.
// Fire-and-forget; dropped silently when not connected.
func (g *GroupChannel) StartTyping() {
	g.typingSignal(protocol.CommandTypingStart)
}

// EndTyping signals that the local user stopped composing.
func (g *GroupChannel) EndTyping() {
	g.typingSignal(protocol.CommandTypingEnd)
}

func (g *GroupChannel) typingSignal(t protocol.CommandType) {
	if g.client == nil {
		return
	}
	raw, err := json.Marshal(channelURLRequest{ChannelURL: g.URL})
	if err != nil {
		return
	}
	g.client.conn.send(protocol.Command{Type: t, Payload: raw}, nil)
}

// GetTypingUsers returns the users currently typing, excluding the
// local user.
func (g *GroupChannel) GetTypingUsers() []User {
	rt := g.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]User, 0, len(rt.typingUsers))
	for _, u := range rt.typingUsers {
		out = append(out, u)
	}
	return out
}

// IsTyping reports whether anyone other than the local user is typing.
func (g *GroupChannel) IsTyping() bool {
	rt := g.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.typingUsers) > 0
}

// GetReadStatus returns a copy of the per-member read timestamps.
func (g *GroupChannel) GetReadStatus() map[string]int64 {
	rt := g.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make(map[string]int64, len(rt.readStatus))
	for id, ts := range rt.readStatus {
		out[id] = ts
	}
	return out
}

// GetUnreadMemberCount returns how many joined members have not read
// the message yet. The sender and the local user never count.
func (g *GroupChannel) GetUnreadMemberCount(m *Message) int {
	if m == nil {
		return 0
	}
	var selfID, senderID string
	if g.client != nil {
		if cu := g.client.CurrentUser(); cu != nil {
			selfID = cu.UserID
		}
	}
	if m.Sender != nil {
		senderID = m.Sender.UserID
	}

	rt := g.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()

	count := 0
	for _, member := range g.Members {
		if member.State != MemberStateJoined {
			continue
		}
		if member.UserID == selfID || member.UserID == senderID {
			continue
		}
		if rt.readStatus[member.UserID] < m.CreatedAt {
			count++
		}
	}
	return count
}

// GetReadMembers returns the joined members whose read position covers
// the message. The sender and the local user are excluded.
func (g *GroupChannel) GetReadMembers(m *Message) []Member {
	return g.membersByReadState(m, true)
}

// GetUnreadMembers returns the joined members who have not read the
// message yet. The sender and the local user are excluded.
func (g *GroupChannel) GetUnreadMembers(m *Message) []Member {
	return g.membersByReadState(m, false)
}

func (g *GroupChannel) membersByReadState(m *Message, read bool) []Member {
	if m == nil {
		return nil
	}
	var selfID, senderID string
	if g.client != nil {
		if cu := g.client.CurrentUser(); cu != nil {
			selfID = cu.UserID
		}
	}
	if m.Sender != nil {
		senderID = m.Sender.UserID
	}

	rt := g.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var out []Member
	for _, member := range g.Members {
		if member.State != MemberStateJoined {
			continue
		}
		if member.UserID == selfID || member.UserID == senderID {
			continue
		}
		if (rt.readStatus[member.UserID] >= m.CreatedAt) == read {
			out = append(out, member)
		}
	}
	return out
}

// GetLastSeenAt returns the member's recorded read position in
// milliseconds, zero when no receipt has arrived.
func (g *GroupChannel) GetLastSeenAt(userID string) int64 {
	rt := g.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.readStatus[userID]
}

// HasMember reports whether the user appears in the member list in any
// state.
func (g *GroupChannel) HasMember(userID string) bool {
	_, ok := g.GetMember(userID)
	return ok
}

// GetMember looks a member up by user ID.
func (g *GroupChannel) GetMember(userID string) (*Member, bool) {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i], true
		}
	}
	return nil, false
}

// applyReadReceipt records a member's read position. Returns false for
// a stale receipt older than the recorded one.
func (g *GroupChannel) applyReadReceipt(userID string, timestamp int64) bool {
	rt := g.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.readStatus[userID] >= timestamp {
		return false
	}
	rt.readStatus[userID] = timestamp
	return true
}

func (g *GroupChannel) setTyping(user User, typing bool) {
	rt := g.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if typing {
		rt.typingUsers[user.UserID] = user
	} else {
		delete(rt.typingUsers, user.UserID)
	}
}

// CreateMemberListQuery returns a paginated query over the channel's
// members.
func (g *GroupChannel) CreateMemberListQuery() *UserListQuery {
	return newUserListQuery(g.client, userListRequest{
		Kind:        "member",
		ChannelURL:  g.URL,
		ChannelType: ChannelTypeGroup,
	})
}
