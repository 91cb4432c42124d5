package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/fenggwsx/DriftChat/internal/protocol"
	"github.com/fenggwsx/DriftChat/transport"
)

// pendingCommand tracks a sent command awaiting its acknowledgement.
type pendingCommand struct {
	reqID string
	timer *time.Timer
	fn    func(protocol.Command, *Error)
}

// connection owns the transport lifecycle: the state machine, the login
// handshake, acknowledgement correlation and the automatic reconnect
// loop. Each connection attempt runs against a fresh transport from the
// factory; the generation counter fences events arriving from
// transports that have since been abandoned.
type connection struct {
	client *Client

	mux   sync.Mutex
	state ConnectionState
	gen   uint64
	tr    transport.Transport

	pending map[string]*pendingCommand

	// Session captured by the last successful login; cleared only by
	// Disconnect. A non-empty userID is what arms automatic reconnect.
	sessionUserID string
	sessionToken  string

	connectingUserID  string
	connectWaiters    []func(*User, *Error)
	disconnectWaiters []func()

	reconnectPending bool
	reconnectTimer   *time.Timer
	bo               *backoff.ExponentialBackOff
}

func newConnection(client *Client) *connection {
	p := client.params
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.ReconnectBaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = p.ReconnectMaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()
	return &connection{
		client:  client,
		state:   StateDisconnected,
		pending: make(map[string]*pendingCommand),
		bo:      bo,
	}
}

// connSink routes transport events back into the connection, tagged
// with the generation of the attempt that opened the transport.
type connSink struct {
	c   *connection
	gen uint64
}

func (s *connSink) OnMessage(raw []byte)  { s.c.onMessage(s.gen, raw) }
func (s *connSink) OnClose(wasClean bool) { s.c.onClose(s.gen, wasClean) }

// State returns the current connection state.
func (c *connection) State() ConnectionState {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.state
}

// Connect establishes a session for userID. The completion fires
// exactly once, after the login handshake settles. Concurrent calls
// for the same user coalesce onto the in-flight attempt; a call for a
// different user supersedes it, and every queued completion resolves
// with the outcome of whichever handshake finishes.
func (c *connection) Connect(userID, authToken string, fn func(*User, *Error)) {
	if fn == nil {
		fn = func(*User, *Error) {}
	}
	if userID == "" {
		fn(nil, errInvalidParameter("user ID is required"))
		return
	}

	c.mux.Lock()
	switch c.state {
	case StateOpen:
		if userID == c.sessionUserID {
			user := c.client.CurrentUser()
			c.mux.Unlock()
			fn(user, nil)
			return
		}
		c.mux.Unlock()
		fn(nil, newErrorf(ErrInvalidInitialization,
			"already connected as %q; disconnect first", userID))
		return
	case StateClosing:
		c.mux.Unlock()
		fn(nil, NewError(ErrInvalidInitialization, "disconnect in progress"))
		return
	case StateConnecting:
		c.connectWaiters = append(c.connectWaiters, fn)
		if userID == c.connectingUserID {
			c.mux.Unlock()
			return
		}
		// Supersede: abandon the in-flight attempt and dial for the
		// new identity. The abandoned transport is fenced off by the
		// generation bump before its events can land.
		old := c.tr
		c.tr = nil
		c.gen++
		gen := c.gen
		c.connectingUserID = userID
		c.cancelReconnectLocked()
		pend := c.takePendingLocked()
		c.mux.Unlock()
		failPending(pend, NewError(ErrWebSocketConnectionClosed, "connection superseded"))
		if old != nil {
			_ = old.Close()
		}
		go c.dial(gen, userID, authToken, false)
		return
	default: // Disconnected, Closed
		c.state = StateConnecting
		c.gen++
		gen := c.gen
		c.connectingUserID = userID
		c.cancelReconnectLocked()
		c.connectWaiters = append(c.connectWaiters, fn)
		c.mux.Unlock()
		go c.dial(gen, userID, authToken, false)
		return
	}
}

// Disconnect tears the session down. Safe to call in any state; the
// completion fires after the transport is closed and local session
// state is cleared.
func (c *connection) Disconnect(fn func()) {
	if fn == nil {
		fn = func() {}
	}

	c.mux.Lock()
	c.cancelReconnectLocked()
	c.sessionUserID = ""
	c.sessionToken = ""

	switch c.state {
	case StateDisconnected, StateClosed:
		c.mux.Unlock()
		c.client.clearSession()
		fn()
		return
	case StateClosing:
		c.disconnectWaiters = append(c.disconnectWaiters, fn)
		c.mux.Unlock()
		return
	}

	// Open or Connecting.
	wasOpen := c.state == StateOpen
	c.disconnectWaiters = append(c.disconnectWaiters, fn)
	c.state = StateClosing
	tr := c.tr
	c.tr = nil
	c.gen++
	waiters := c.connectWaiters
	c.connectWaiters = nil
	pend := c.takePendingLocked()
	c.mux.Unlock()

	closeErr := NewError(ErrWebSocketConnectionClosed, "websocket connection closed")
	failPending(pend, closeErr)
	for _, w := range waiters {
		w(nil, closeErr)
	}
	c.client.clearSession()

	if tr != nil {
		// Best-effort farewell so the server can tear down the session
		// without waiting for a read timeout.
		if wasOpen {
			if raw, err := protocol.Marshal(protocol.Command{Type: protocol.CommandLogout}); err == nil {
				_ = tr.Send(raw)
			}
		}
		_ = tr.Close()
	}
	c.finishClose()
}

// Reconnect forces an immediate reconnect attempt for the last
// session, bypassing any pending backoff delay. Returns false when no
// session exists to resume.
func (c *connection) Reconnect() bool {
	c.mux.Lock()
	if c.sessionUserID == "" {
		c.mux.Unlock()
		return false
	}
	if c.state == StateOpen || c.state == StateConnecting {
		c.mux.Unlock()
		return true
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectPending = false
	c.mux.Unlock()
	c.startReconnectAttempt()
	return true
}

// send transmits cmd and registers fn against its request ID. When fn
// is nil the command is fire-and-forget. The completion is invoked
// with the reply, an ack timeout, or the connection-loss error,
// exactly once.
func (c *connection) send(cmd protocol.Command, fn func(protocol.Command, *Error)) {
	c.mux.Lock()
	if c.state != StateOpen {
		c.mux.Unlock()
		if fn != nil {
			fn(protocol.Command{}, errConnectionRequired())
		}
		return
	}
	tr := c.tr
	if fn != nil {
		// Message sends pre-set the request ID so the pending message
		// and its frame share one identity.
		if cmd.RequestID == "" {
			cmd.RequestID = uuid.NewString()
		}
		pc := &pendingCommand{reqID: cmd.RequestID, fn: fn}
		pc.timer = time.AfterFunc(c.client.params.AckTimeout, func() {
			c.expirePending(pc.reqID, NewError(ErrAckTimeout, "command acknowledgement timed out"))
		})
		c.pending[cmd.RequestID] = pc
	}
	c.mux.Unlock()

	raw, err := protocol.Marshal(cmd)
	if err != nil {
		c.failOne(cmd.RequestID, errInvalidParameter(err.Error()))
		return
	}
	if err := tr.Send(raw); err != nil {
		jww.WARN.Printf("send %s failed: %v", cmd.Type, err)
		c.failOne(cmd.RequestID, NewError(ErrNetworkError, err.Error()))
	}
}

// dial runs one connection attempt against a fresh transport.
func (c *connection) dial(gen uint64, userID, authToken string, reconnect bool) {
	tr := c.client.params.TransportFactory()

	c.mux.Lock()
	if gen != c.gen {
		c.mux.Unlock()
		_ = tr.Close()
		return
	}
	c.tr = tr
	c.mux.Unlock()

	if err := tr.Open(c.client.params.WSURL, &connSink{c: c, gen: gen}); err != nil {
		jww.WARN.Printf("dial %s: %v", c.client.params.WSURL, err)
		c.settleConnect(gen, nil, NewError(ErrWebSocketConnectionFailed, err.Error()), authToken, reconnect)
		return
	}
	c.sendLogin(gen, userID, authToken, reconnect)
}

func (c *connection) sendLogin(gen uint64, userID, authToken string, reconnect bool) {
	c.mux.Lock()
	if gen != c.gen {
		c.mux.Unlock()
		return
	}
	tr := c.tr
	cmd := protocol.Command{
		Type:      protocol.CommandLogin,
		RequestID: uuid.NewString(),
	}
	payload, err := json.Marshal(loginRequest{
		AppID:     c.client.params.AppID,
		UserID:    userID,
		AuthToken: authToken,
	})
	if err != nil {
		c.mux.Unlock()
		c.settleConnect(gen, nil, errInvalidParameter(err.Error()), authToken, reconnect)
		return
	}
	cmd.Payload = payload

	pc := &pendingCommand{
		reqID: cmd.RequestID,
		fn: func(reply protocol.Command, cmdErr *Error) {
			c.finishLogin(gen, reply, cmdErr, authToken, reconnect)
		},
	}
	pc.timer = time.AfterFunc(c.client.params.LoginTimeout, func() {
		c.expirePending(pc.reqID, NewError(ErrLoginTimeout, "login timed out"))
	})
	c.pending[cmd.RequestID] = pc
	c.mux.Unlock()

	raw, err := protocol.Marshal(cmd)
	if err != nil {
		c.failOne(cmd.RequestID, errInvalidParameter(err.Error()))
		return
	}
	if err := tr.Send(raw); err != nil {
		c.failOne(cmd.RequestID, NewError(ErrWebSocketConnectionFailed, err.Error()))
	}
}

func (c *connection) finishLogin(gen uint64, reply protocol.Command, cmdErr *Error, authToken string, reconnect bool) {
	if cmdErr != nil {
		c.settleConnect(gen, nil, cmdErr, authToken, reconnect)
		return
	}
	var resp loginResponse
	if err := json.Unmarshal(reply.Payload, &resp); err != nil {
		c.settleConnect(gen, nil, NewError(ErrNetworkError, "malformed login reply"), authToken, reconnect)
		return
	}
	c.settleConnect(gen, &resp, nil, authToken, reconnect)
}

// settleConnect resolves a connection attempt, flipping the state
// machine and draining the connect waiters with the outcome. The
// session identity and token commit only here, on success; a failed
// attempt for a new user leaves the previous session resumable.
func (c *connection) settleConnect(gen uint64, resp *loginResponse, connErr *Error, authToken string, reconnect bool) {
	c.mux.Lock()
	if gen != c.gen {
		c.mux.Unlock()
		return
	}
	waiters := c.connectWaiters
	c.connectWaiters = nil

	if connErr != nil {
		tr := c.tr
		c.tr = nil
		c.gen++
		c.state = StateClosed
		pend := c.takePendingLocked()
		retry := reconnect && c.sessionUserID != ""
		c.mux.Unlock()

		failPending(pend, connErr)
		if tr != nil {
			_ = tr.Close()
		}
		for _, w := range waiters {
			w(nil, connErr)
		}
		if retry {
			c.client.dispatcher.connection.each(func(h ConnectionHandler) {
				h.ReconnectFailed()
			})
			c.scheduleReconnect()
		}
		return
	}

	c.state = StateOpen
	c.sessionUserID = resp.User.UserID
	c.sessionToken = authToken
	c.bo.Reset()
	c.mux.Unlock()

	c.client.sessionEstablished(resp, authToken)
	for _, w := range waiters {
		w(&resp.User, nil)
	}
	if reconnect {
		c.client.dispatcher.connection.each(func(h ConnectionHandler) {
			h.ReconnectSucceeded()
		})
	}
}

// onMessage handles one inbound frame from the transport goroutine.
// Replies resolve their pending command; everything else is routed to
// the event layer in arrival order.
func (c *connection) onMessage(gen uint64, raw []byte) {
	c.mux.Lock()
	if gen != c.gen {
		c.mux.Unlock()
		return
	}
	c.mux.Unlock()

	cmd, err := protocol.Parse(raw)
	if err != nil {
		jww.WARN.Printf("dropping malformed frame: %v", err)
		return
	}
	if cmd.IsReply() {
		c.resolvePending(cmd)
		return
	}
	c.client.routeEvent(cmd)
}

func (c *connection) resolvePending(cmd protocol.Command) {
	c.mux.Lock()
	pc, ok := c.pending[cmd.RequestID]
	if ok {
		delete(c.pending, cmd.RequestID)
		pc.timer.Stop()
	}
	c.mux.Unlock()
	if !ok {
		jww.DEBUG.Printf("unmatched reply %s req_id=%s", cmd.Type, cmd.RequestID)
		return
	}
	if cmd.Type == protocol.CommandError {
		ep := protocol.ParseError(cmd.Payload)
		code := ep.Code
		if code == 0 {
			code = ErrInternalServerError
		}
		pc.fn(cmd, NewError(code, ep.Message))
		return
	}
	pc.fn(cmd, nil)
}

// onClose handles transport closure. A closure while Closing completes
// the pending Disconnect; an unexpected closure with a live session
// arms the reconnect loop.
func (c *connection) onClose(gen uint64, wasClean bool) {
	c.mux.Lock()
	if gen != c.gen {
		c.mux.Unlock()
		return
	}
	c.tr = nil
	c.gen++
	prev := c.state
	c.state = StateClosed
	pend := c.takePendingLocked()
	waiters := c.connectWaiters
	c.connectWaiters = nil
	// A drop mid-handshake during a reconnect attempt must also
	// reschedule, so the bar is a live session, not an Open state.
	retry := prev != StateClosing && c.sessionUserID != "" && !wasClean
	c.mux.Unlock()

	closeErr := NewError(ErrWebSocketConnectionClosed, "websocket connection closed")
	failPending(pend, closeErr)
	for _, w := range waiters {
		w(nil, closeErr)
	}

	if prev == StateClosing {
		c.finishClose()
		return
	}
	if retry {
		jww.INFO.Printf("connection lost, scheduling reconnect")
		c.scheduleReconnect()
	}
}

func (c *connection) scheduleReconnect() {
	c.mux.Lock()
	if c.reconnectPending || c.sessionUserID == "" {
		c.mux.Unlock()
		return
	}
	c.reconnectPending = true
	delay := c.bo.NextBackOff()
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mux.Lock()
		c.reconnectPending = false
		c.reconnectTimer = nil
		c.mux.Unlock()
		c.startReconnectAttempt()
	})
	c.mux.Unlock()
	jww.INFO.Printf("reconnect in %s", delay)
}

func (c *connection) startReconnectAttempt() {
	c.mux.Lock()
	if c.sessionUserID == "" || c.state == StateOpen || c.state == StateConnecting {
		c.mux.Unlock()
		return
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	userID := c.sessionUserID
	token := c.sessionToken
	c.connectingUserID = userID
	c.mux.Unlock()

	c.client.dispatcher.connection.each(func(h ConnectionHandler) {
		h.ReconnectStarted()
	})
	c.dial(gen, userID, token, true)
}

func (c *connection) finishClose() {
	c.mux.Lock()
	c.state = StateClosed
	dw := c.disconnectWaiters
	c.disconnectWaiters = nil
	c.mux.Unlock()
	for _, fn := range dw {
		fn()
	}
}

func (c *connection) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectPending = false
}

func (c *connection) takePendingLocked() []*pendingCommand {
	if len(c.pending) == 0 {
		return nil
	}
	out := make([]*pendingCommand, 0, len(c.pending))
	for _, pc := range c.pending {
		pc.timer.Stop()
		out = append(out, pc)
	}
	c.pending = make(map[string]*pendingCommand)
	return out
}

// expirePending fires a pending command's timeout.
func (c *connection) expirePending(reqID string, timeoutErr *Error) {
	c.mux.Lock()
	pc, ok := c.pending[reqID]
	if ok {
		delete(c.pending, reqID)
	}
	c.mux.Unlock()
	if ok {
		pc.fn(protocol.Command{}, timeoutErr)
	}
}

func (c *connection) failOne(reqID string, failErr *Error) {
	if reqID == "" {
		return
	}
	c.mux.Lock()
	pc, ok := c.pending[reqID]
	if ok {
		delete(c.pending, reqID)
		pc.timer.Stop()
	}
	c.mux.Unlock()
	if ok {
		pc.fn(protocol.Command{}, failErr)
	}
}

func failPending(pend []*pendingCommand, failErr *Error) {
	for _, pc := range pend {
		pc.fn(protocol.Command{}, failErr)
	}
}
