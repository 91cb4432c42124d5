package chat

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/fenggwsx/DriftChat/internal/auth"
	"github.com/fenggwsx/DriftChat/internal/protocol"
	"github.com/fenggwsx/DriftChat/internal/store"
)

// Client is the entry point of the SDK. One Client holds one user
// session: the connection, the identity caches, the handler registries
// and the per-session counters. All methods are safe for concurrent
// use; completions may run on the connection's reader goroutine.
type Client struct {
	params     Params
	conn       *connection
	registry   *registry
	dispatcher *dispatcher
	cache      *store.Cache

	mu                 sync.Mutex
	currentUser        *User
	pendingPush        *PendingPushToken
	entered            map[string]struct{}
	totalUnread        int64
	unreadByCustomType map[string]int64
}

// NewClient builds a Client for the given application. A CachePath in
// params enables session resumption and deferred push tokens across
// process restarts.
func NewClient(params Params) (*Client, error) {
	if params.AppID == "" {
		return nil, errors.New("app ID is required")
	}
	if params.WSURL == "" {
		return nil, errors.New("websocket URL is required")
	}
	params.normalize()

	c := &Client{
		params:     params,
		registry:   newRegistry(),
		dispatcher: newDispatcher(),
		entered:    make(map[string]struct{}),
	}
	c.conn = newConnection(c)

	if params.CachePath != "" {
		cache, err := store.Open(params.CachePath)
		if err != nil {
			return nil, errors.Wrap(err, "opening cache")
		}
		c.cache = cache
		if tokenType, token, unique, ok := cache.LoadPushToken(); ok {
			c.pendingPush = &PendingPushToken{
				Type:   PushTokenType(tokenType),
				Token:  token,
				Unique: unique,
			}
		}
	}
	return c, nil
}

// Close releases the client's local resources. It does not disconnect;
// call Disconnect first for a clean shutdown.
func (c *Client) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

// Connect opens a session for userID. See connection.Connect for the
// coalescing and supersede semantics.
func (c *Client) Connect(userID, authToken string, fn func(*User, *Error)) {
	c.conn.Connect(userID, authToken, fn)
}

// ConnectFromCache resumes the session persisted by the last
// successful connect, if the cache holds one and its token has not
// expired.
func (c *Client) ConnectFromCache(fn func(*User, *Error)) {
	if fn == nil {
		fn = func(*User, *Error) {}
	}
	if c.cache == nil {
		fn(nil, NewError(ErrInvalidInitialization, "no cache configured"))
		return
	}
	userID, token, ok := c.cache.LoadSession()
	if !ok {
		fn(nil, errConnectionRequired())
		return
	}
	if auth.Expired(token) {
		if err := c.cache.ClearSession(); err != nil {
			jww.WARN.Printf("clearing expired session: %v", err)
		}
		fn(nil, NewError(ErrConnectionRequired, "cached session expired"))
		return
	}
	c.conn.Connect(userID, token, fn)
}

// Disconnect closes the session and wipes all session-scoped state,
// registered handlers included; the next Connect starts from a clean
// slate.
func (c *Client) Disconnect(fn func()) {
	c.conn.Disconnect(fn)
}

// Reconnect forces an immediate reconnect attempt, bypassing any
// pending backoff delay. Returns false when there is no session to
// resume.
func (c *Client) Reconnect() bool {
	return c.conn.Reconnect()
}

// ConnectionState reports the connection lifecycle state.
func (c *Client) ConnectionState() ConnectionState {
	return c.conn.State()
}

// CurrentUser returns the authenticated user, or nil before the first
// successful connect.
func (c *Client) CurrentUser() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentUser
}

// AddConnectionHandler registers h under id, replacing any previous
// handler with the same id in place.
func (c *Client) AddConnectionHandler(id string, h ConnectionHandler) {
	c.dispatcher.connection.add(id, h)
}

// RemoveConnectionHandler unregisters the handler under id; unknown
// ids are a no-op.
func (c *Client) RemoveConnectionHandler(id string) {
	c.dispatcher.connection.remove(id)
}

// AddChannelHandler registers h under id, replacing any previous
// handler with the same id in place.
func (c *Client) AddChannelHandler(id string, h ChannelHandler) {
	c.dispatcher.channel.add(id, h)
}

// RemoveChannelHandler unregisters the handler under id; unknown ids
// are a no-op.
func (c *Client) RemoveChannelHandler(id string) {
	c.dispatcher.channel.remove(id)
}

// RemoveAllChannelHandlers drops every channel handler.
func (c *Client) RemoveAllChannelHandlers() {
	c.dispatcher.channel.removeAll()
}

// AddUserEventHandler registers h under id.
func (c *Client) AddUserEventHandler(id string, h UserEventHandler) {
	c.dispatcher.userEvent.add(id, h)
}

// RemoveUserEventHandler unregisters the handler under id.
func (c *Client) RemoveUserEventHandler(id string) {
	c.dispatcher.userEvent.remove(id)
}

// GroupChannelParams collects the inputs of CreateGroupChannel.
type GroupChannelParams struct {
	ChannelURL      string
	Name            string
	CoverURL        string
	Data            string
	CustomType      string
	UserIDs         []string
	OperatorUserIDs []string
	IsDistinct      bool
	IsPublic        bool
	IsEphemeral     bool
}

// CreateGroupChannel creates a group channel with the local user as a
// member. For a distinct channel the server returns the existing
// channel with the same member set instead of creating a new one.
func (c *Client) CreateGroupChannel(params GroupChannelParams, fn func(*GroupChannel, *Error)) {
	if fn == nil {
		fn = func(*GroupChannel, *Error) {}
	}
	req := channelCreateRequest{
		ChannelType:     ChannelTypeGroup,
		ChannelURL:      params.ChannelURL,
		Name:            params.Name,
		CoverURL:        params.CoverURL,
		Data:            params.Data,
		CustomType:      params.CustomType,
		UserIDs:         params.UserIDs,
		OperatorUserIDs: params.OperatorUserIDs,
		IsDistinct:      params.IsDistinct,
		IsPublic:        params.IsPublic,
		IsEphemeral:     params.IsEphemeral,
	}
	var snap GroupChannel
	c.sendRequestInto(protocol.CommandChannelCreate, req, &snap, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(nil, cmdErr)
			return
		}
		fn(c.internGroupChannel(&snap), nil)
	})
}

// OpenChannelParams collects the inputs of CreateOpenChannel.
type OpenChannelParams struct {
	ChannelURL      string
	Name            string
	CoverURL        string
	Data            string
	CustomType      string
	OperatorUserIDs []string
}

// CreateOpenChannel creates an open channel.
func (c *Client) CreateOpenChannel(params OpenChannelParams, fn func(*OpenChannel, *Error)) {
	if fn == nil {
		fn = func(*OpenChannel, *Error) {}
	}
	req := channelCreateRequest{
		ChannelType:     ChannelTypeOpen,
		ChannelURL:      params.ChannelURL,
		Name:            params.Name,
		CoverURL:        params.CoverURL,
		Data:            params.Data,
		CustomType:      params.CustomType,
		OperatorUserIDs: params.OperatorUserIDs,
	}
	var snap OpenChannel
	c.sendRequestInto(protocol.CommandChannelCreate, req, &snap, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(nil, cmdErr)
			return
		}
		fn(c.internOpenChannel(&snap), nil)
	})
}

// GetGroupChannel resolves a group channel by URL, from the cache when
// possible.
func (c *Client) GetGroupChannel(channelURL string, fn func(*GroupChannel, *Error)) {
	if fn == nil {
		fn = func(*GroupChannel, *Error) {}
	}
	if channelURL == "" {
		fn(nil, errInvalidParameter("channel URL is required"))
		return
	}
	if ch, ok := c.registry.GroupChannel(channelURL); ok {
		fn(ch, nil)
		return
	}
	if _, ok := c.registry.OpenChannel(channelURL); ok {
		fn(nil, NewError(ErrWrongChannelType, "channel is an open channel"))
		return
	}
	var snap GroupChannel
	c.sendRequestInto(protocol.CommandChannelGet,
		channelURLRequest{ChannelURL: channelURL, ChannelType: ChannelTypeGroup},
		&snap, func(cmdErr *Error) {
			if cmdErr != nil {
				fn(nil, cmdErr)
				return
			}
			fn(c.internGroupChannel(&snap), nil)
		})
}

// GetOpenChannel resolves an open channel by URL, from the cache when
// possible.
func (c *Client) GetOpenChannel(channelURL string, fn func(*OpenChannel, *Error)) {
	if fn == nil {
		fn = func(*OpenChannel, *Error) {}
	}
	if channelURL == "" {
		fn(nil, errInvalidParameter("channel URL is required"))
		return
	}
	if ch, ok := c.registry.OpenChannel(channelURL); ok {
		fn(ch, nil)
		return
	}
	if _, ok := c.registry.GroupChannel(channelURL); ok {
		fn(nil, NewError(ErrWrongChannelType, "channel is a group channel"))
		return
	}
	var snap OpenChannel
	c.sendRequestInto(protocol.CommandChannelGet,
		channelURLRequest{ChannelURL: channelURL, ChannelType: ChannelTypeOpen},
		&snap, func(cmdErr *Error) {
			if cmdErr != nil {
				fn(nil, cmdErr)
				return
			}
			fn(c.internOpenChannel(&snap), nil)
		})
}

// CreateGroupChannelListQuery returns a paginated query over the local
// user's group channels.
func (c *Client) CreateGroupChannelListQuery() *GroupChannelListQuery {
	return newGroupChannelListQuery(c)
}

// CreateOpenChannelListQuery returns a paginated query over the
// application's open channels.
func (c *Client) CreateOpenChannelListQuery() *OpenChannelListQuery {
	return newOpenChannelListQuery(c)
}

// CreateApplicationUserListQuery returns a paginated query over the
// application's users, optionally restricted to the given IDs.
func (c *Client) CreateApplicationUserListQuery(userIDs ...string) *UserListQuery {
	return newUserListQuery(c, userListRequest{Kind: "user", UserIDs: userIDs})
}

// CreateBlockedUserListQuery returns a paginated query over the users
// blocked by the local user.
func (c *Client) CreateBlockedUserListQuery() *UserListQuery {
	return newUserListQuery(c, userListRequest{Kind: "blocked"})
}

// GetGroupChannelCount fetches how many group channels the local user
// has in the given membership state.
func (c *Client) GetGroupChannelCount(filter MemberStateFilter, fn func(int64, *Error)) {
	if fn == nil {
		fn = func(int64, *Error) {}
	}
	var resp channelCountResponse
	c.sendRequestInto(protocol.CommandChannelCount,
		channelCountRequest{MemberStateFilter: filter}, &resp,
		func(cmdErr *Error) {
			if cmdErr != nil {
				fn(0, cmdErr)
				return
			}
			fn(resp.Count, nil)
		})
}

// GetTotalUnreadMessageCount fetches the unread message total across
// all group channels.
func (c *Client) GetTotalUnreadMessageCount(fn func(int64, *Error)) {
	if fn == nil {
		fn = func(int64, *Error) {}
	}
	var resp unreadCountResponse
	c.sendRequestInto(protocol.CommandUnreadCount, unreadCountRequest{}, &resp,
		func(cmdErr *Error) {
			if cmdErr != nil {
				fn(0, cmdErr)
				return
			}
			c.setUnreadCounts(resp.TotalCount, resp.ByCustomType)
			fn(resp.TotalCount, nil)
		})
}

// GetTotalUnreadChannelCount fetches how many group channels hold
// unread messages.
func (c *Client) GetTotalUnreadChannelCount(fn func(int64, *Error)) {
	if fn == nil {
		fn = func(int64, *Error) {}
	}
	var resp unreadCountResponse
	c.sendRequestInto(protocol.CommandUnreadCount, unreadCountRequest{}, &resp,
		func(cmdErr *Error) {
			if cmdErr != nil {
				fn(0, cmdErr)
				return
			}
			fn(resp.ChannelCount, nil)
		})
}

// TotalUnreadMessageCount returns the last unread total pushed or
// fetched in this session.
func (c *Client) TotalUnreadMessageCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalUnread
}

// UpdateCurrentUserInfo changes the local user's nickname or profile
// image URL; nil pointers leave the server value untouched.
func (c *Client) UpdateCurrentUserInfo(nickname, profileURL *string, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	req := userUpdateRequest{Nickname: nickname, ProfileURL: profileURL}
	c.sendRequest(protocol.CommandUserUpdate, req, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(cmdErr)
			return
		}
		c.mu.Lock()
		if c.currentUser != nil {
			if nickname != nil {
				c.currentUser.Nickname = *nickname
			}
			if profileURL != nil {
				c.currentUser.ProfileURL = *profileURL
			}
		}
		c.mu.Unlock()
		fn(nil)
	})
}

// CreateUserMetaData stores new key-value pairs on the local user.
func (c *Client) CreateUserMetaData(data map[string]string, fn func(map[string]string, *Error)) {
	c.mutateUserMetaData(userMetaDataRequest{Operation: "create", Data: data}, fn)
}

// UpdateUserMetaData upserts key-value pairs on the local user.
func (c *Client) UpdateUserMetaData(data map[string]string, fn func(map[string]string, *Error)) {
	c.mutateUserMetaData(userMetaDataRequest{Operation: "update", Data: data}, fn)
}

// DeleteUserMetaData removes the given keys from the local user.
func (c *Client) DeleteUserMetaData(keys []string, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	c.mutateUserMetaData(userMetaDataRequest{Operation: "delete", Keys: keys},
		func(_ map[string]string, cmdErr *Error) { fn(cmdErr) })
}

func (c *Client) mutateUserMetaData(req userMetaDataRequest, fn func(map[string]string, *Error)) {
	if fn == nil {
		fn = func(map[string]string, *Error) {}
	}
	var resp metaDataResponse
	c.sendRequestInto(protocol.CommandUserMetaData, req, &resp, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(nil, cmdErr)
			return
		}
		c.mu.Lock()
		if c.currentUser != nil {
			if c.currentUser.MetaData == nil {
				c.currentUser.MetaData = make(map[string]string)
			}
			for k, v := range resp.MetaData {
				c.currentUser.MetaData[k] = v
			}
			if req.Operation == "delete" {
				for _, k := range req.Keys {
					delete(c.currentUser.MetaData, k)
				}
			}
		}
		c.mu.Unlock()
		fn(resp.MetaData, nil)
	})
}

// BlockUser blocks the given user; their messages are no longer
// delivered to the local user.
func (c *Client) BlockUser(userID string, fn func(*User, *Error)) {
	c.setBlocked(userID, true, fn)
}

// UnblockUser lifts a block.
func (c *Client) UnblockUser(userID string, fn func(*User, *Error)) {
	c.setBlocked(userID, false, fn)
}

func (c *Client) setBlocked(userID string, block bool, fn func(*User, *Error)) {
	if fn == nil {
		fn = func(*User, *Error) {}
	}
	if userID == "" {
		fn(nil, errInvalidParameter("user ID is required"))
		return
	}
	t := protocol.CommandUnblockUser
	if block {
		t = protocol.CommandBlockUser
	}
	var resp blockResponse
	c.sendRequestInto(t, blockRequest{UserID: userID, Block: block}, &resp,
		func(cmdErr *Error) {
			if cmdErr != nil {
				fn(nil, cmdErr)
				return
			}
			fn(&resp.User, nil)
		})
}

// SetChannelInvitationPreference chooses whether group channel
// invitations join the local user automatically or wait in the
// invited state.
func (c *Client) SetChannelInvitationPreference(autoAccept bool, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	req := invitationPreferenceRequest{AutoAccept: &autoAccept}
	c.sendRequest(protocol.CommandInvitePref, req, fn)
}

// GetChannelInvitationPreference fetches the invitation preference.
func (c *Client) GetChannelInvitationPreference(fn func(bool, *Error)) {
	if fn == nil {
		fn = func(bool, *Error) {}
	}
	var resp invitationPreferenceResponse
	c.sendRequestInto(protocol.CommandInvitePref, invitationPreferenceRequest{}, &resp,
		func(cmdErr *Error) {
			if cmdErr != nil {
				fn(false, cmdErr)
				return
			}
			fn(resp.AutoAccept, nil)
		})
}

// MarkAllGroupChannelsAsRead reports every group channel as read.
func (c *Client) MarkAllGroupChannelsAsRead(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	c.sendRequest(protocol.CommandMarkAllAsRead, struct{}{}, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(cmdErr)
			return
		}
		c.setUnreadCounts(0, nil)
		fn(nil)
	})
}

// sendRequest sends a command whose reply is only checked for success.
func (c *Client) sendRequest(t protocol.CommandType, payload interface{}, fn func(*Error)) {
	raw, err := json.Marshal(payload)
	if err != nil {
		fn(errInvalidParameter(err.Error()))
		return
	}
	c.conn.send(protocol.Command{Type: t, Payload: raw},
		func(_ protocol.Command, cmdErr *Error) { fn(cmdErr) })
}

// sendRequestInto sends a command and decodes the reply payload.
func (c *Client) sendRequestInto(t protocol.CommandType, payload, out interface{}, fn func(*Error)) {
	raw, err := json.Marshal(payload)
	if err != nil {
		fn(errInvalidParameter(err.Error()))
		return
	}
	c.conn.send(protocol.Command{Type: t, Payload: raw},
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

// internGroupChannel folds a decoded snapshot into the identity cache
// and returns the canonical object.
func (c *Client) internGroupChannel(snap *GroupChannel) *GroupChannel {
	snap.attach(c, ChannelTypeGroup)
	if snap.rt == nil {
		snap.rt = newGroupRuntime()
	}
	if snap.LastMessage != nil {
		snap.LastMessage = c.registry.UpsertMessage(snap.LastMessage)
	}
	return c.registry.UpsertGroupChannel(snap)
}

// internOpenChannel folds a decoded snapshot into the identity cache
// and returns the canonical object.
func (c *Client) internOpenChannel(snap *OpenChannel) *OpenChannel {
	snap.attach(c, ChannelTypeOpen)
	if snap.rt == nil {
		snap.rt = newOpenRuntime()
	}
	snap.reindexOperators()
	return c.registry.UpsertOpenChannel(snap)
}

// internMessages folds a decoded message slice into the identity cache.
func (c *Client) internMessages(msgs []Message) []*Message {
	out := make([]*Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, c.registry.UpsertMessage(&msgs[i]))
	}
	return out
}

func (c *Client) trackEntered(channelURL string) {
	c.mu.Lock()
	c.entered[channelURL] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) untrackEntered(channelURL string) {
	c.mu.Lock()
	delete(c.entered, channelURL)
	c.mu.Unlock()
}

func (c *Client) enteredChannelURLs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entered))
	for url := range c.entered {
		out = append(out, url)
	}
	return out
}

func (c *Client) setUnreadCounts(total int64, byCustomType map[string]int64) {
	c.mu.Lock()
	c.totalUnread = total
	c.unreadByCustomType = byCustomType
	c.mu.Unlock()
}

// sessionEstablished runs after every successful login: it installs
// the authenticated user, persists the session, re-enters open
// channels and retries any deferred push token.
func (c *Client) sessionEstablished(resp *loginResponse, authToken string) {
	user := resp.User
	c.mu.Lock()
	c.currentUser = &user
	c.totalUnread = resp.TotalUnreadCount
	c.unreadByCustomType = resp.UnreadCountByCustomType
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.SaveSession(user.UserID, authToken); err != nil {
			jww.WARN.Printf("persisting session: %v", err)
		}
	}

	for _, url := range c.enteredChannelURLs() {
		raw, err := json.Marshal(channelURLRequest{ChannelURL: url})
		if err != nil {
			continue
		}
		url := url
		c.conn.send(protocol.Command{Type: protocol.CommandChannelEnter, Payload: raw},
			func(_ protocol.Command, cmdErr *Error) {
				if cmdErr != nil {
					jww.WARN.Printf("re-entering %s failed: %v", url, cmdErr)
				}
			})
	}

	c.flushPendingPushToken()
}

// clearSession wipes session-scoped state after an explicit
// disconnect, handler registrations included. An app that reconnects
// re-registers its handlers.
func (c *Client) clearSession() {
	c.registry.Clear()
	c.dispatcher.connection.removeAll()
	c.dispatcher.channel.removeAll()
	c.dispatcher.userEvent.removeAll()
	c.mu.Lock()
	c.currentUser = nil
	c.totalUnread = 0
	c.unreadByCustomType = nil
	c.entered = make(map[string]struct{})
	c.mu.Unlock()
	if c.cache != nil {
		if err := c.cache.ClearSession(); err != nil {
			jww.WARN.Printf("clearing cached session: %v", err)
		}
	}
}
