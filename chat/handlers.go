package chat

import (
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// ConnectionHandler observes the automatic reconnect cycle.
type ConnectionHandler interface {
	ReconnectStarted()
	ReconnectSucceeded()
	ReconnectFailed()
}

// ConnectionHandlerAdapter is a no-op ConnectionHandler to embed when
// only a subset of callbacks is of interest.
type ConnectionHandlerAdapter struct{}

func (ConnectionHandlerAdapter) ReconnectStarted()   {}
func (ConnectionHandlerAdapter) ReconnectSucceeded() {}
func (ConnectionHandlerAdapter) ReconnectFailed()    {}

// UserEventHandler observes events scoped to the current user.
type UserEventHandler interface {
	TotalUnreadMessageCountChanged(totalCount int64, countByCustomType map[string]int64)
}

// UserEventHandlerAdapter is a no-op UserEventHandler to embed.
type UserEventHandlerAdapter struct{}

func (UserEventHandlerAdapter) TotalUnreadMessageCountChanged(int64, map[string]int64) {}

// ChannelHandler receives server-pushed channel events. Embed
// ChannelHandlerAdapter and override the callbacks of interest.
type ChannelHandler interface {
	MessageReceived(channel Channel, message *Message)
	MessageUpdated(channel Channel, message *Message)
	MessageDeleted(channel Channel, messageID int64)
	MentionReceived(channel Channel, message *Message)

	ReadReceiptUpdated(channel *GroupChannel)
	TypingStatusUpdated(channel *GroupChannel)
	InvitationReceived(channel *GroupChannel, invitees []User, inviter *User)
	InvitationDeclined(channel *GroupChannel, invitee User, inviter *User)
	UserJoined(channel *GroupChannel, user User)
	UserLeft(channel *GroupChannel, user User)
	ChannelHidden(channel *GroupChannel)

	UserEntered(channel *OpenChannel, user User)
	UserExited(channel *OpenChannel, user User)
	UserMuted(channel *OpenChannel, user User)
	UserUnmuted(channel *OpenChannel, user User)
	UserBanned(channel *OpenChannel, user User)
	UserUnbanned(channel *OpenChannel, user User)
	ChannelFrozen(channel *OpenChannel)
	ChannelUnfrozen(channel *OpenChannel)

	ChannelChanged(channel Channel)
	ChannelDeleted(channelURL string, channelType ChannelType)
	OperatorUpdated(channel Channel)

	MetaDataCreated(channel Channel, metaData map[string]string)
	MetaDataUpdated(channel Channel, metaData map[string]string)
	MetaDataDeleted(channel Channel, keys []string)
	MetaCountersCreated(channel Channel, metaCounters map[string]int64)
	MetaCountersUpdated(channel Channel, metaCounters map[string]int64)
	MetaCountersDeleted(channel Channel, keys []string)
}

// ChannelHandlerAdapter is a no-op ChannelHandler to embed.
type ChannelHandlerAdapter struct{}

func (ChannelHandlerAdapter) MessageReceived(Channel, *Message)               {}
func (ChannelHandlerAdapter) MessageUpdated(Channel, *Message)                {}
func (ChannelHandlerAdapter) MessageDeleted(Channel, int64)                   {}
func (ChannelHandlerAdapter) MentionReceived(Channel, *Message)               {}
func (ChannelHandlerAdapter) ReadReceiptUpdated(*GroupChannel)                {}
func (ChannelHandlerAdapter) TypingStatusUpdated(*GroupChannel)               {}
func (ChannelHandlerAdapter) InvitationReceived(*GroupChannel, []User, *User) {}
func (ChannelHandlerAdapter) InvitationDeclined(*GroupChannel, User, *User)   {}
func (ChannelHandlerAdapter) UserJoined(*GroupChannel, User)                  {}
func (ChannelHandlerAdapter) UserLeft(*GroupChannel, User)                    {}
func (ChannelHandlerAdapter) ChannelHidden(*GroupChannel)                     {}
func (ChannelHandlerAdapter) UserEntered(*OpenChannel, User)                  {}
func (ChannelHandlerAdapter) UserExited(*OpenChannel, User)                   {}
func (ChannelHandlerAdapter) UserMuted(*OpenChannel, User)                    {}
func (ChannelHandlerAdapter) UserUnmuted(*OpenChannel, User)                  {}
func (ChannelHandlerAdapter) UserBanned(*OpenChannel, User)                   {}
func (ChannelHandlerAdapter) UserUnbanned(*OpenChannel, User)                 {}
func (ChannelHandlerAdapter) ChannelFrozen(*OpenChannel)                      {}
func (ChannelHandlerAdapter) ChannelUnfrozen(*OpenChannel)                    {}
func (ChannelHandlerAdapter) ChannelChanged(Channel)                          {}
func (ChannelHandlerAdapter) ChannelDeleted(string, ChannelType)              {}
func (ChannelHandlerAdapter) OperatorUpdated(Channel)                         {}
func (ChannelHandlerAdapter) MetaDataCreated(Channel, map[string]string)      {}
func (ChannelHandlerAdapter) MetaDataUpdated(Channel, map[string]string)      {}
func (ChannelHandlerAdapter) MetaDataDeleted(Channel, []string)               {}
func (ChannelHandlerAdapter) MetaCountersCreated(Channel, map[string]int64)   {}
func (ChannelHandlerAdapter) MetaCountersUpdated(Channel, map[string]int64)   {}
func (ChannelHandlerAdapter) MetaCountersDeleted(Channel, []string)           {}

// handlerRecord keeps registration order alongside the caller's key.
type handlerRecord[H any] struct {
	id      string
	handler H
}

// handlerList is one category's registry. Handlers fire in registration
// order; removal by an unknown identifier is a no-op.
type handlerList[H any] struct {
	mux     sync.RWMutex
	records []handlerRecord[H]
}

func (l *handlerList[H]) add(id string, h H) {
	l.mux.Lock()
	defer l.mux.Unlock()
	for i := range l.records {
		if l.records[i].id == id {
			l.records[i].handler = h
			return
		}
	}
	l.records = append(l.records, handlerRecord[H]{id: id, handler: h})
}

func (l *handlerList[H]) remove(id string) {
	l.mux.Lock()
	defer l.mux.Unlock()
	for i := range l.records {
		if l.records[i].id == id {
			l.records = append(l.records[:i], l.records[i+1:]...)
			return
		}
	}
}

func (l *handlerList[H]) removeAll() {
	l.mux.Lock()
	defer l.mux.Unlock()
	l.records = nil
}

// each invokes fn for every handler in order, isolating panics so one
// failing handler cannot starve the rest.
func (l *handlerList[H]) each(fn func(H)) {
	l.mux.RLock()
	snapshot := make([]handlerRecord[H], len(l.records))
	copy(snapshot, l.records)
	l.mux.RUnlock()

	for _, rec := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					jww.ERROR.Printf("handler %q panicked: %v", rec.id, r)
				}
			}()
			fn(rec.handler)
		}()
	}
}

// dispatcher owns the three handler registries.
type dispatcher struct {
	connection handlerList[ConnectionHandler]
	channel    handlerList[ChannelHandler]
	userEvent  handlerList[UserEventHandler]
}

func newDispatcher() *dispatcher {
	return &dispatcher{}
}
