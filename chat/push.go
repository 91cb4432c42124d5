package chat

import (
	jww "github.com/spf13/jwalterweatherman"

	"github.com/fenggwsx/DriftChat/internal/protocol"
)

// PendingPushToken is a registration deferred until the next
// successful connection.
type PendingPushToken struct {
	Type   PushTokenType
	Token  string
	Unique bool
}

// RegisterPushToken registers a device push token for the current
// user. When no connection is open the token is kept (and persisted
// when a cache is configured) and registered automatically after the
// next successful connect; the completion then reports
// PushTokenStatusPending.
func (c *Client) RegisterPushToken(tokenType PushTokenType, token string, unique bool, fn func(PushTokenRegistrationStatus, *Error)) {
	if fn == nil {
		fn = func(PushTokenRegistrationStatus, *Error) {}
	}
	if token == "" {
		fn(PushTokenStatusError, errInvalidParameter("push token is required"))
		return
	}

	if c.conn.State() != StateOpen {
		c.setPendingPushToken(&PendingPushToken{Type: tokenType, Token: token, Unique: unique})
		fn(PushTokenStatusPending, nil)
		return
	}

	req := pushRegisterRequest{TokenType: tokenType, Token: token, Unique: unique}
	c.sendRequest(protocol.CommandPushRegister, req, func(cmdErr *Error) {
		if cmdErr != nil {
			fn(PushTokenStatusError, cmdErr)
			return
		}
		c.clearPendingPushToken()
		fn(PushTokenStatusSuccess, nil)
	})
}

// UnregisterPushToken removes one device token registration.
func (c *Client) UnregisterPushToken(tokenType PushTokenType, token string, fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	if token == "" {
		fn(errInvalidParameter("push token is required"))
		return
	}
	c.dropPendingPushToken(tokenType, token)
	req := pushUnregisterRequest{TokenType: tokenType, Token: token}
	c.sendRequest(protocol.CommandPushUnregister, req, fn)
}

// UnregisterAllPushTokens removes every device token of the current
// user.
func (c *Client) UnregisterAllPushTokens(fn func(*Error)) {
	if fn == nil {
		fn = func(*Error) {}
	}
	c.clearPendingPushToken()
	c.sendRequest(protocol.CommandPushUnregister, pushUnregisterRequest{All: true}, fn)
}

// PendingPushToken returns the deferred registration, if any.
func (c *Client) PendingPushToken() *PendingPushToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingPush == nil {
		return nil
	}
	cp := *c.pendingPush
	return &cp
}

func (c *Client) setPendingPushToken(t *PendingPushToken) {
	c.mu.Lock()
	c.pendingPush = t
	c.mu.Unlock()
	if c.cache != nil {
		if err := c.cache.SavePushToken(int(t.Type), t.Token, t.Unique); err != nil {
			jww.WARN.Printf("persisting push token: %v", err)
		}
	}
}

func (c *Client) clearPendingPushToken() {
	c.mu.Lock()
	c.pendingPush = nil
	c.mu.Unlock()
	if c.cache != nil {
		if err := c.cache.DeletePushTokens(); err != nil {
			jww.WARN.Printf("clearing cached push tokens: %v", err)
		}
	}
}

func (c *Client) dropPendingPushToken(tokenType PushTokenType, token string) {
	c.mu.Lock()
	match := c.pendingPush != nil && c.pendingPush.Type == tokenType && c.pendingPush.Token == token
	if match {
		c.pendingPush = nil
	}
	c.mu.Unlock()
	if match && c.cache != nil {
		if err := c.cache.DeletePushTokens(); err != nil {
			jww.WARN.Printf("clearing cached push tokens: %v", err)
		}
	}
}

// flushPendingPushToken retries the deferred registration after a
// connect. Failures keep the token pending for the next session.
func (c *Client) flushPendingPushToken() {
	c.mu.Lock()
	t := c.pendingPush
	c.mu.Unlock()
	if t == nil {
		return
	}
	req := pushRegisterRequest{TokenType: t.Type, Token: t.Token, Unique: t.Unique}
	c.sendRequest(protocol.CommandPushRegister, req, func(cmdErr *Error) {
		if cmdErr != nil {
			jww.WARN.Printf("deferred push token registration failed: %v", cmdErr)
			return
		}
		c.clearPendingPushToken()
	})
}
