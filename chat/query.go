package chat

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/fenggwsx/DriftChat/internal/protocol"
)

const defaultQueryLimit = 20

// pager is the cursor state machine shared by every list query. One
// page fetch may be in flight at a time; an exhausted pager answers
// further loads with an empty page without touching the network.
type pager struct {
	mu      sync.Mutex
	loading bool
	hasNext bool
	token   string
}

func newPager() pager {
	return pager{hasNext: true}
}

// HasNext reports whether another page may exist. True until a page
// arrives without a continuation token.
func (p *pager) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasNext
}

// IsLoading reports whether a page fetch is in flight.
func (p *pager) IsLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// begin claims the in-flight slot. The second return is false when the
// pager is exhausted and the load should resolve empty immediately.
func (p *pager) begin() (*Error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loading {
		return NewError(ErrQueryInProgress, "query already in progress"), false
	}
	if !p.hasNext {
		return nil, false
	}
	p.loading = true
	return nil, true
}

func (p *pager) finish(next string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false
	if !ok {
		return
	}
	p.token = next
	p.hasNext = next != ""
}

func (p *pager) cursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// errFiltersChanged rejects a load whose filter fields no longer match
// the snapshot taken when paging started. Changing filters mid-run
// would hand the server an inconsistent predicate for the cursor.
func errFiltersChanged() *Error {
	return NewError(ErrInvalidParameter, "query filters changed after paging started")
}

// sendQuery runs one page fetch against the connection and decodes the
// reply payload into out.
func sendQuery(client *Client, t protocol.CommandType, req, out interface{}, fn func(*Error)) {
	if client == nil {
		fn(NewError(ErrInvalidInitialization, "query is not attached to a client"))
		return
	}
	raw, err := json.Marshal(req)
	if err != nil {
		fn(errInvalidParameter(err.Error()))
		return
	}
	client.conn.send(protocol.Command{Type: t, Payload: raw},
		func(reply protocol.Command, cmdErr *Error) {
			if cmdErr != nil {
				fn(cmdErr)
				return
			}
			if err := json.Unmarshal(reply.Payload, out); err != nil {
				fn(NewError(ErrNetworkError, "malformed query reply"))
				return
			}
			fn(nil)
		})
}

// GroupChannelListQuery pages through the local user's group channels.
// Filter fields must be set before the first page loads; a load after
// any filter changed fails with ErrInvalidParameter.
type GroupChannelListQuery struct {
	Limit                int
	Order                GroupChannelListOrder
	IncludeEmpty         bool
	IncludeFrozen        bool
	MemberStateFilter    MemberStateFilter
	PublicStateFilter    PublicStateFilter
	HiddenStateFilter    HiddenStateFilter
	CustomTypesFilter    []string
	CustomTypeStartsWith string
	ChannelNameContains  string
	ChannelURLsFilter    []string
	UserIDsIncludeFilter []string
	QueryType            QueryType
	NicknameContains     string
	UnreadChannelFilter  bool

	client *Client
	pager  pager
	frozen *groupChannelListRequest
}

func newGroupChannelListQuery(client *Client) *GroupChannelListQuery {
	return &GroupChannelListQuery{
		Limit:         defaultQueryLimit,
		IncludeFrozen: true,
		client:        client,
		pager:         newPager(),
	}
}

func (q *GroupChannelListQuery) HasNext() bool   { return q.pager.HasNext() }
func (q *GroupChannelListQuery) IsLoading() bool { return q.pager.IsLoading() }

// LoadNextPage fetches the next page of channels. At most one load may
// be in flight; an exhausted query resolves with an empty page.
func (q *GroupChannelListQuery) LoadNextPage(fn func([]*GroupChannel, *Error)) {
	if fn == nil {
		fn = func([]*GroupChannel, *Error) {}
	}
	beginErr, proceed := q.pager.begin()
	if beginErr != nil {
		fn(nil, beginErr)
		return
	}
	if !proceed {
		fn([]*GroupChannel{}, nil)
		return
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	built := groupChannelListRequest{
		Limit:                limit,
		Order:                q.Order,
		IncludeEmpty:         q.IncludeEmpty,
		IncludeFrozen:        q.IncludeFrozen,
		MemberStateFilter:    q.MemberStateFilter,
		PublicStateFilter:    q.PublicStateFilter,
		HiddenStateFilter:    q.HiddenStateFilter,
		CustomTypeFilter:     q.CustomTypesFilter,
		CustomTypeStartsWith: q.CustomTypeStartsWith,
		ChannelNameContains:  q.ChannelNameContains,
		ChannelURLs:          q.ChannelURLsFilter,
		UserIDsFilter:        q.UserIDsIncludeFilter,
		QueryType:            q.QueryType,
		NicknameContains:     q.NicknameContains,
		UnreadOnly:           q.UnreadChannelFilter,
	}
	if q.frozen == nil {
		q.frozen = &built
	} else if !reflect.DeepEqual(built, *q.frozen) {
		q.pager.finish("", false)
		fn(nil, errFiltersChanged())
		return
	}
	req := *q.frozen
	req.Token = q.pager.cursor()

	var resp groupChannelListResponse
	sendQuery(q.client, protocol.CommandChannelList, channelListEnvelope{
		ChannelType: ChannelTypeGroup,
		Group:       &req,
	}, &resp, func(cmdErr *Error) {
		if cmdErr != nil {
			q.pager.finish("", false)
			fn(nil, cmdErr)
			return
		}
		q.pager.finish(resp.Next, true)
		out := make([]*GroupChannel, 0, len(resp.Channels))
		for i := range resp.Channels {
			out = append(out, q.client.internGroupChannel(&resp.Channels[i]))
		}
		fn(out, nil)
	})
}

// OpenChannelListQuery pages through the application's open channels.
type OpenChannelListQuery struct {
	Limit             int
	NameKeyword       string
	URLKeyword        string
	CustomTypesFilter []string
	IncludeFrozen     bool

	client *Client
	pager  pager
	frozen *openChannelListRequest
}

func newOpenChannelListQuery(client *Client) *OpenChannelListQuery {
	return &OpenChannelListQuery{
		Limit:         defaultQueryLimit,
		IncludeFrozen: true,
		client:        client,
		pager:         newPager(),
	}
}

func (q *OpenChannelListQuery) HasNext() bool   { return q.pager.HasNext() }
func (q *OpenChannelListQuery) IsLoading() bool { return q.pager.IsLoading() }

// LoadNextPage fetches the next page of channels.
func (q *OpenChannelListQuery) LoadNextPage(fn func([]*OpenChannel, *Error)) {
	if fn == nil {
		fn = func([]*OpenChannel, *Error) {}
	}
	beginErr, proceed := q.pager.begin()
	if beginErr != nil {
		fn(nil, beginErr)
		return
	}
	if !proceed {
		fn([]*OpenChannel{}, nil)
		return
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	built := openChannelListRequest{
		Limit:         limit,
		NameKeyword:   q.NameKeyword,
		URLKeyword:    q.URLKeyword,
		CustomTypes:   q.CustomTypesFilter,
		IncludeFrozen: q.IncludeFrozen,
	}
	if q.frozen == nil {
		q.frozen = &built
	} else if !reflect.DeepEqual(built, *q.frozen) {
		q.pager.finish("", false)
		fn(nil, errFiltersChanged())
		return
	}
	req := *q.frozen
	req.Token = q.pager.cursor()

	var resp openChannelListResponse
	sendQuery(q.client, protocol.CommandChannelList, channelListEnvelope{
		ChannelType: ChannelTypeOpen,
		Open:        &req,
	}, &resp, func(cmdErr *Error) {
		if cmdErr != nil {
			q.pager.finish("", false)
			fn(nil, cmdErr)
			return
		}
		q.pager.finish(resp.Next, true)
		out := make([]*OpenChannel, 0, len(resp.Channels))
		for i := range resp.Channels {
			out = append(out, q.client.internOpenChannel(&resp.Channels[i]))
		}
		fn(out, nil)
	})
}

// UserListQuery pages through a user population: application users,
// blocked users, or a channel's members, participants, operators,
// muted or banned users.
type UserListQuery struct {
	Limit                int
	NicknameStartsWith   string
	MetaDataKeyFilter    string
	MetaDataValuesFilter []string

	client *Client
	pager  pager
	base   userListRequest
	frozen *userListRequest
}

func newUserListQuery(client *Client, base userListRequest) *UserListQuery {
	return &UserListQuery{
		Limit:  defaultQueryLimit,
		client: client,
		pager:  newPager(),
		base:   base,
	}
}

func (q *UserListQuery) HasNext() bool   { return q.pager.HasNext() }
func (q *UserListQuery) IsLoading() bool { return q.pager.IsLoading() }

// LoadNextPage fetches the next page of users.
func (q *UserListQuery) LoadNextPage(fn func([]User, *Error)) {
	if fn == nil {
		fn = func([]User, *Error) {}
	}
	beginErr, proceed := q.pager.begin()
	if beginErr != nil {
		fn(nil, beginErr)
		return
	}
	if !proceed {
		fn([]User{}, nil)
		return
	}

	built := q.base
	built.Limit = q.Limit
	if built.Limit <= 0 {
		built.Limit = defaultQueryLimit
	}
	built.NicknameStartsWith = q.NicknameStartsWith
	built.MetaDataKey = q.MetaDataKeyFilter
	built.MetaDataValues = q.MetaDataValuesFilter
	if q.frozen == nil {
		q.frozen = &built
	} else if !reflect.DeepEqual(built, *q.frozen) {
		q.pager.finish("", false)
		fn(nil, errFiltersChanged())
		return
	}
	req := *q.frozen
	req.Token = q.pager.cursor()

	var resp userListResponse
	sendQuery(q.client, protocol.CommandUserList, req, &resp, func(cmdErr *Error) {
		if cmdErr != nil {
			q.pager.finish("", false)
			fn(nil, cmdErr)
			return
		}
		q.pager.finish(resp.Next, true)
		fn(resp.Users, nil)
	})
}

// PreviousMessageListQuery walks a channel's history backwards from
// the newest message, page by page.
type PreviousMessageListQuery struct {
	Limit            int
	Reverse          bool
	MessageType      MessageTypeFilter
	CustomTypeFilter string
	IncludeMetaArray bool

	client      *Client
	channelURL  string
	channelType ChannelType
	pager       pager
	frozen      *messageListRequest
}

func newPreviousMessageListQuery(client *Client, channelURL string, channelType ChannelType) *PreviousMessageListQuery {
	return &PreviousMessageListQuery{
		Limit:       defaultQueryLimit,
		client:      client,
		channelURL:  channelURL,
		channelType: channelType,
		pager:       newPager(),
	}
}

func (q *PreviousMessageListQuery) HasNext() bool   { return q.pager.HasNext() }
func (q *PreviousMessageListQuery) IsLoading() bool { return q.pager.IsLoading() }

// LoadNextPage fetches the next (older) page of messages.
func (q *PreviousMessageListQuery) LoadNextPage(fn func([]*Message, *Error)) {
	if fn == nil {
		fn = func([]*Message, *Error) {}
	}
	beginErr, proceed := q.pager.begin()
	if beginErr != nil {
		fn(nil, beginErr)
		return
	}
	if !proceed {
		fn([]*Message{}, nil)
		return
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	built := messageListRequest{
		ChannelURL:       q.channelURL,
		ChannelType:      q.channelType,
		Limit:            limit,
		Reverse:          q.Reverse,
		MessageType:      q.MessageType,
		CustomType:       q.CustomTypeFilter,
		IncludeMetaArray: q.IncludeMetaArray,
	}
	if q.frozen == nil {
		q.frozen = &built
	} else if !reflect.DeepEqual(built, *q.frozen) {
		q.pager.finish("", false)
		fn(nil, errFiltersChanged())
		return
	}
	req := *q.frozen
	req.Token = q.pager.cursor()

	var resp messageListResponse
	sendQuery(q.client, protocol.CommandMessageList, req, &resp, func(cmdErr *Error) {
		if cmdErr != nil {
			q.pager.finish("", false)
			fn(nil, cmdErr)
			return
		}
		q.pager.finish(resp.Next, true)
		fn(q.client.internMessages(resp.Messages), nil)
	})
}
