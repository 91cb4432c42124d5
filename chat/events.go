package chat

import (
	"encoding/json"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/fenggwsx/DriftChat/internal/protocol"
)

// routeEvent handles one server push. Pushes arrive on the reader
// goroutine and are dispatched synchronously, so handlers observe
// events in arrival order.
func (c *Client) routeEvent(cmd protocol.Command) {
	switch cmd.Type {
	case protocol.CommandUserMessage, protocol.CommandFileMessage, protocol.CommandAdminMessage:
		c.handleMessagePush(cmd)
	case protocol.CommandUpdateMessage:
		c.handleMessageUpdate(cmd)
	case protocol.CommandDeleteMessage:
		c.handleMessageDelete(cmd)
	case protocol.CommandReadReceipt:
		c.handleReadReceipt(cmd)
	case protocol.CommandTypingStart:
		c.handleTyping(cmd, true)
	case protocol.CommandTypingEnd:
		c.handleTyping(cmd, false)
	case protocol.CommandEvent:
		c.handleSystemEvent(cmd)
	default:
		jww.DEBUG.Printf("ignoring push %s", cmd.Type)
	}
}

func (c *Client) handleMessagePush(cmd protocol.Command) {
	var msg Message
	if err := json.Unmarshal(cmd.Payload, &msg); err != nil {
		jww.WARN.Printf("malformed message push: %v", err)
		return
	}
	// The server may redeliver after a reconnect; a known ID means the
	// message was already announced.
	if msg.MessageID != 0 {
		if _, seen := c.registry.MessageByID(msg.MessageID); seen {
			jww.DEBUG.Printf("duplicate message %d dropped", msg.MessageID)
			return
		}
	}
	canonical := c.registry.UpsertMessage(&msg)

	channel := c.resolveChannel(msg.ChannelURL, msg.ChannelType, nil)
	if channel == nil {
		return
	}

	selfID := ""
	if cu := c.CurrentUser(); cu != nil {
		selfID = cu.UserID
	}
	fromSelf := canonical.Sender != nil && canonical.Sender.UserID == selfID

	if g, ok := channel.(*GroupChannel); ok {
		mentioned := !fromSelf && c.isMentioned(canonical, selfID)
		g.recordMessage(canonical, !fromSelf, mentioned)
		if g.consumeAutoUnhide() {
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.ChannelChanged(g)
			})
		}
	}

	c.dispatcher.channel.each(func(h ChannelHandler) {
		h.MessageReceived(channel, canonical)
	})
	if !fromSelf && c.isMentioned(canonical, selfID) {
		c.dispatcher.channel.each(func(h ChannelHandler) {
			h.MentionReceived(channel, canonical)
		})
	}
}

func (c *Client) isMentioned(m *Message, selfID string) bool {
	if selfID == "" {
		return false
	}
	if m.MentionType == MentionTypeChannel && len(m.MentionedUserIDs) == 0 {
		return false
	}
	for _, id := range m.MentionedUserIDs {
		if id == selfID {
			return true
		}
	}
	return false
}

func (c *Client) handleMessageUpdate(cmd protocol.Command) {
	var msg Message
	if err := json.Unmarshal(cmd.Payload, &msg); err != nil {
		jww.WARN.Printf("malformed message update push: %v", err)
		return
	}
	canonical := c.registry.UpsertMessage(&msg)
	channel := c.resolveChannel(msg.ChannelURL, msg.ChannelType, nil)
	if channel == nil {
		return
	}
	c.dispatcher.channel.each(func(h ChannelHandler) {
		h.MessageUpdated(channel, canonical)
	})
}

func (c *Client) handleMessageDelete(cmd protocol.Command) {
	var ev messageDeleteEvent
	if err := json.Unmarshal(cmd.Payload, &ev); err != nil {
		jww.WARN.Printf("malformed message delete push: %v", err)
		return
	}
	c.registry.RemoveMessage(ev.MessageID)
	channel := c.resolveChannel(ev.ChannelURL, ev.ChannelType, nil)
	if channel == nil {
		return
	}
	c.dispatcher.channel.each(func(h ChannelHandler) {
		h.MessageDeleted(channel, ev.MessageID)
	})
}

func (c *Client) handleReadReceipt(cmd protocol.Command) {
	var ev readReceiptEvent
	if err := json.Unmarshal(cmd.Payload, &ev); err != nil {
		jww.WARN.Printf("malformed read receipt: %v", err)
		return
	}
	g, ok := c.registry.GroupChannel(ev.ChannelURL)
	if !ok {
		return
	}
	if !g.applyReadReceipt(ev.UserID, ev.Timestamp) {
		return
	}
	c.dispatcher.channel.each(func(h ChannelHandler) {
		h.ReadReceiptUpdated(g)
	})
}

func (c *Client) handleTyping(cmd protocol.Command, typing bool) {
	var ev typingEvent
	if err := json.Unmarshal(cmd.Payload, &ev); err != nil {
		jww.WARN.Printf("malformed typing event: %v", err)
		return
	}
	g, ok := c.registry.GroupChannel(ev.ChannelURL)
	if !ok {
		return
	}
	if cu := c.CurrentUser(); cu != nil && cu.UserID == ev.User.UserID {
		return
	}
	g.setTyping(ev.User, typing)
	c.dispatcher.channel.each(func(h ChannelHandler) {
		h.TypingStatusUpdated(g)
	})
}

func (c *Client) handleSystemEvent(cmd protocol.Command) {
	var ep eventPayload
	if err := json.Unmarshal(cmd.Payload, &ep); err != nil {
		jww.WARN.Printf("malformed system event: %v", err)
		return
	}

	switch ep.Category {
	case eventUnreadCount:
		c.setUnreadCounts(ep.TotalUnreadCount, ep.UnreadCountByCustomType)
		c.dispatcher.userEvent.each(func(h UserEventHandler) {
			h.TotalUnreadMessageCountChanged(ep.TotalUnreadCount, ep.UnreadCountByCustomType)
		})
		return
	case eventChannelDeleted:
		c.registry.RemoveChannel(ep.ChannelURL)
		c.untrackEntered(ep.ChannelURL)
		c.dispatcher.channel.each(func(h ChannelHandler) {
			h.ChannelDeleted(ep.ChannelURL, ep.ChannelType)
		})
		return
	}

	channel := c.resolveChannel(ep.ChannelURL, ep.ChannelType, ep.Channel)
	if channel == nil {
		return
	}

	switch ep.Category {
	case eventUserJoined:
		if g, ok := channel.(*GroupChannel); ok && ep.User != nil {
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.UserJoined(g, *ep.User)
			})
		}
	case eventUserLeft:
		if g, ok := channel.(*GroupChannel); ok && ep.User != nil {
			if cu := c.CurrentUser(); cu != nil && cu.UserID == ep.User.UserID {
				c.registry.RemoveChannel(g.URL)
			}
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.UserLeft(g, *ep.User)
			})
		}
	case eventInvited:
		if g, ok := channel.(*GroupChannel); ok {
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.InvitationReceived(g, ep.Users, ep.Inviter)
			})
		}
	case eventDeclinedInvite:
		if g, ok := channel.(*GroupChannel); ok && ep.Invitee != nil {
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.InvitationDeclined(g, *ep.Invitee, ep.Inviter)
			})
		}
	case eventChannelHidden:
		if g, ok := channel.(*GroupChannel); ok {
			g.markHidden()
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.ChannelHidden(g)
			})
		}
	case eventUserEntered:
		if o, ok := channel.(*OpenChannel); ok && ep.User != nil {
			o.adjustParticipantCount(1)
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.UserEntered(o, *ep.User)
			})
		}
	case eventUserExited:
		if o, ok := channel.(*OpenChannel); ok && ep.User != nil {
			o.adjustParticipantCount(-1)
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.UserExited(o, *ep.User)
			})
		}
	case eventUserMuted:
		if o, ok := channel.(*OpenChannel); ok && ep.User != nil {
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.UserMuted(o, *ep.User)
			})
		}
	case eventUserUnmuted:
		if o, ok := channel.(*OpenChannel); ok && ep.User != nil {
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.UserUnmuted(o, *ep.User)
			})
		}
	case eventUserBanned:
		if o, ok := channel.(*OpenChannel); ok && ep.User != nil {
			if cu := c.CurrentUser(); cu != nil && cu.UserID == ep.User.UserID {
				c.untrackEntered(o.URL)
			}
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.UserBanned(o, *ep.User)
			})
		}
	case eventUserUnbanned:
		if o, ok := channel.(*OpenChannel); ok && ep.User != nil {
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.UserUnbanned(o, *ep.User)
			})
		}
	case eventChannelFrozen:
		switch ch := channel.(type) {
		case *GroupChannel:
			ch.setFrozen(true)
		case *OpenChannel:
			ch.setFrozen(true)
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.ChannelFrozen(ch)
			})
		}
	case eventChannelUnfrozen:
		switch ch := channel.(type) {
		case *GroupChannel:
			ch.setFrozen(false)
		case *OpenChannel:
			ch.setFrozen(false)
			c.dispatcher.channel.each(func(h ChannelHandler) {
				h.ChannelUnfrozen(ch)
			})
		}
	case eventChannelChanged:
		c.dispatcher.channel.each(func(h ChannelHandler) {
			h.ChannelChanged(channel)
		})
	case eventOperatorChanged:
		c.dispatcher.channel.each(func(h ChannelHandler) {
			h.OperatorUpdated(channel)
		})
	case eventMetaDataCreated:
		c.dispatcher.channel.each(func(h ChannelHandler) {
			h.MetaDataCreated(channel, ep.MetaData)
		})
	case eventMetaDataUpdated:
		c.dispatcher.channel.each(func(h ChannelHandler) {
			h.MetaDataUpdated(channel, ep.MetaData)
		})
	case eventMetaDataDeleted:
		c.dispatcher.channel.each(func(h ChannelHandler) {
			h.MetaDataDeleted(channel, ep.Keys)
		})
	case eventCountersCreated:
		c.dispatcher.channel.each(func(h ChannelHandler) {
			h.MetaCountersCreated(channel, ep.MetaCounters)
		})
	case eventCountersUpdated:
		c.dispatcher.channel.each(func(h ChannelHandler) {
			h.MetaCountersUpdated(channel, ep.MetaCounters)
		})
	case eventCountersDeleted:
		c.dispatcher.channel.each(func(h ChannelHandler) {
			h.MetaCountersDeleted(channel, ep.Keys)
		})
	default:
		jww.DEBUG.Printf("ignoring event category %q", ep.Category)
	}
}

// resolveChannel returns the canonical channel object for an event.
// A snapshot in the payload refreshes the cache; otherwise a cached
// object is used, and as a last resort a URL-only placeholder is
// interned to be hydrated by a later Refresh.
func (c *Client) resolveChannel(url string, kind ChannelType, snapshot json.RawMessage) Channel {
	if url == "" {
		return nil
	}
	if len(snapshot) > 0 {
		if kind == ChannelTypeGroup {
			var snap GroupChannel
			if err := json.Unmarshal(snapshot, &snap); err == nil {
				return c.internGroupChannel(&snap)
			}
		} else {
			var snap OpenChannel
			if err := json.Unmarshal(snapshot, &snap); err == nil {
				return c.internOpenChannel(&snap)
			}
		}
		jww.WARN.Printf("malformed channel snapshot for %s", url)
	}
	if kind == ChannelTypeGroup {
		if g, ok := c.registry.GroupChannel(url); ok {
			return g
		}
		return c.internGroupChannel(&GroupChannel{BaseChannel: BaseChannel{URL: url}})
	}
	if o, ok := c.registry.OpenChannel(url); ok {
		return o
	}
	return c.internOpenChannel(&OpenChannel{BaseChannel: BaseChannel{URL: url}})
}
