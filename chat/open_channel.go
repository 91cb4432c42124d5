package chat

import (
	"sync"

	"github.com/fenggwsx/DriftChat/internal/protocol"
)

// openRuntime holds client-side open channel state that survives
// snapshot overwrites.
type openRuntime struct {
	mu          sync.Mutex
	operatorIDs map[string]struct{}
}

func newOpenRuntime() *openRuntime {
	return &openRuntime{operatorIDs: make(map[string]struct{})}
}

// OpenChannel is a public channel anyone can enter as a participant.
// Participation is per connection: the client re-enters every entered
// channel after a reconnect, and a disconnect ends participation.
type OpenChannel struct {
	BaseChannel

	ParticipantCount int    `json:"participant_count"`
	Operators        []User `json:"operators,omitempty"`

	rt *openRuntime
}

// overwrite copies every snapshot field of src into o in place,
// preserving o's client binding and refreshing the operator index.
func (o *OpenChannel) overwrite(src *OpenChannel) {
	client, rt := o.client, o.rt
	if rt == nil {
		rt = newOpenRuntime()
	}
	rt.mu.Lock()
	*o = *src
	o.client = client
	o.kind = ChannelTypeOpen
	o.rt = rt
	rt.mu.Unlock()
	o.reindexOperators()
}

func (o *OpenChannel) runtime() *openRuntime {
	if o.rt == nil {
		o.rt = newOpenRuntime()
	}
	return o.rt
}

// locked runs fn under the runtime lock. The participant count and
// frozen flag are written on the connection's reader goroutine, so
// concurrent reads go through the accessors below.
func (o *OpenChannel) locked(fn func()) {
	rt := o.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	fn()
}

// GetParticipantCount returns the number of users currently in the
// channel, per the latest snapshot and entry/exit events.
func (o *OpenChannel) GetParticipantCount() int {
	var n int
	o.locked(func() { n = o.ParticipantCount })
	return n
}

func (o *OpenChannel) adjustParticipantCount(delta int) {
	o.locked(func() {
		o.ParticipantCount += delta
		if o.ParticipantCount < 0 {
			o.ParticipantCount = 0
		}
	})
}

func (o *OpenChannel) setFrozen(frozen bool) {
	o.locked(func() { o.IsFrozen = frozen })
}

// GetIsFrozen reports whether the channel is frozen.
func (o *OpenChannel) GetIsFrozen() bool {
	var frozen bool
	o.locked(func() { frozen = o.IsFrozen })
	return frozen
}

func (o *OpenChannel) reindexOperators() {
	rt := o.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.operatorIDs = make(map[string]struct{}, len(o.Operators))
	for _, u := range o.Operators {
		rt.operatorIDs[u.UserID] = struct{}{}
	}
}

// IsOperator reports whether the user operates this channel, based on
// the operator list of the latest channel snapshot.
func (o *OpenChannel) IsOperator(userID string) bool {
	rt := o.runtime()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, ok := rt.operatorIDs[userID]
	return ok
}

// Enter joins the channel as a participant. Messages from the channel
// are only delivered while entered.
func (o *OpenChannel) Enter(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	o.request(protocol.CommandChannelEnter,
		channelURLRequest{ChannelURL: o.URL}, func(cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			o.client.trackEntered(o.URL)
			fn(nil)
		})
}

// Exit leaves the channel's participant set.
func (o *OpenChannel) Exit(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	o.request(protocol.CommandChannelExit,
		channelURLRequest{ChannelURL: o.URL}, func(cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			o.client.untrackEntered(o.URL)
			fn(nil)
		})
}

// Refresh refetches the channel snapshot from the server.
func (o *OpenChannel) Refresh(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	var snap OpenChannel
	o.requestInto(protocol.CommandChannelGet,
		channelURLRequest{ChannelURL: o.URL, ChannelType: ChannelTypeOpen},
		&snap, func(cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			o.client.internOpenChannel(&snap)
			fn(nil)
		})
}

// OpenChannelUpdateParams collects the mutable channel fields; nil
// pointers leave the server value untouched.
type OpenChannelUpdateParams struct {
	Name            *string
	CoverURL        *string
	Data            *string
	CustomType      *string
	OperatorUserIDs []string
}

// Update applies the given field changes to the channel. Requires
// operator status.
func (o *OpenChannel) Update(params OpenChannelUpdateParams, fn func(*OpenChannel, *Error)) {
	if fn == nil {
		fn = func(*OpenChannel, *Error) {}
	}
	req := channelUpdateRequest{
		ChannelType:     ChannelTypeOpen,
		ChannelURL:      o.URL,
		Name:            params.Name,
		CoverURL:        params.CoverURL,
		Data:            params.Data,
		CustomType:      params.CustomType,
		OperatorUserIDs: params.OperatorUserIDs,
	}
	var snap OpenChannel
	o.requestInto(protocol.CommandChannelUpdate, req, &snap, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(nil, cmdErr)
			return
		}
		fn(o.client.internOpenChannel(&snap), nil)
	})
}

// Delete removes the channel entirely. Requires operator status.
func (o *OpenChannel) Delete(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	o.request(protocol.CommandChannelDelete,
		channelURLRequest{ChannelURL: o.URL, ChannelType: ChannelTypeOpen},
		func(cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			o.client.untrackEntered(o.URL)
			o.client.registry.RemoveChannel(o.URL)
			fn(nil)
		})
}

// CreateParticipantListQuery returns a paginated query over the users
// currently in the channel.
func (o *OpenChannel) CreateParticipantListQuery() *UserListQuery {
	return o.userQuery("participant")
}

// CreateMutedUserListQuery returns a paginated query over the muted
// users of the channel.
func (o *OpenChannel) CreateMutedUserListQuery() *UserListQuery {
	return o.userQuery("muted")
}

// CreateBannedUserListQuery returns a paginated query over the banned
// users of the channel.
func (o *OpenChannel) CreateBannedUserListQuery() *UserListQuery {
	return o.userQuery("banned")
}

func (o *OpenChannel) userQuery(kind string) *UserListQuery {
	return newUserListQuery(o.client, userListRequest{
		Kind:        kind,
		ChannelURL:  o.URL,
		ChannelType: ChannelTypeOpen,
	})
}
