package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/DriftChat/internal/protocol"
)

// A successful handshake resolves the completion with the
// authenticated user and flips the state machine to Open.
func TestConnectLoginSuccess(t *testing.T) {
	client, spool := newTestClient(t)
	connectTestClient(t, client, spool, "alice")

	require.Equal(t, StateOpen, client.ConnectionState())
	require.NotNil(t, client.CurrentUser())
	require.Equal(t, "alice", client.CurrentUser().UserID)
}

// Concurrent connects for the same user share one handshake; every
// completion fires with its outcome.
func TestConnectCoalescesSameUser(t *testing.T) {
	client, spool := newTestClient(t)

	var mu sync.Mutex
	results := 0
	fn := func(user *User, err *Error) {
		mu.Lock()
		defer mu.Unlock()
		require.Nil(t, err)
		require.Equal(t, "alice", user.UserID)
		results++
	}
	client.Connect("alice", "", fn)
	client.Connect("alice", "", fn)

	require.Eventually(t, func() bool { return spool.count() > 0 }, 2*time.Second, 5*time.Millisecond)
	tr := spool.latest(t)
	login := awaitCommand(t, tr, protocol.CommandLogin)
	tr.reply(t, login, loginResponse{User: User{UserID: "alice"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return results == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Only one login frame went out.
	count := 0
	for _, cmd := range tr.sentCommands(t) {
		if cmd.Type == protocol.CommandLogin {
			count++
		}
	}
	require.Equal(t, 1, count)
}

// Connecting as a second user while a session is open fails without
// touching the existing session.
func TestConnectWhileOpenOtherUser(t *testing.T) {
	client, spool := newTestClient(t)
	connectTestClient(t, client, spool, "alice")

	var got *Error
	client.Connect("bob", "", func(_ *User, err *Error) { got = err })
	require.NotNil(t, got)
	require.Equal(t, ErrInvalidInitialization, got.Code)
	require.Equal(t, "alice", client.CurrentUser().UserID)
}

// An empty user ID is rejected immediately.
func TestConnectEmptyUserID(t *testing.T) {
	client, _ := newTestClient(t)

	var got *Error
	client.Connect("", "", func(_ *User, err *Error) { got = err })
	require.NotNil(t, got)
	require.Equal(t, ErrInvalidParameter, got.Code)
}

// A handshake that never completes resolves with the login timeout.
func TestLoginTimeout(t *testing.T) {
	client, spool := newTestClient(t)

	done := make(chan *Error, 1)
	client.Connect("alice", "", func(_ *User, err *Error) { done <- err })
	require.Eventually(t, func() bool { return spool.count() > 0 }, 2*time.Second, 5*time.Millisecond)
	awaitCommand(t, spool.latest(t), protocol.CommandLogin)

	select {
	case err := <-done:
		require.NotNil(t, err)
		require.Equal(t, ErrLoginTimeout, err.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("login did not time out")
	}
	require.Equal(t, StateClosed, client.ConnectionState())
}

// Replies resolve the pending command they correlate with.
func TestAckCorrelation(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")

	done := make(chan *Error, 1)
	client.GetTotalUnreadMessageCount(func(count int64, err *Error) {
		require.Equal(t, int64(7), count)
		done <- err
	})
	req := awaitCommand(t, tr, protocol.CommandUnreadCount)
	tr.reply(t, req, unreadCountResponse{TotalCount: 7})

	select {
	case err := <-done:
		require.Nil(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("completion never fired")
	}
}

// A command with no reply resolves exactly once with the ack timeout.
func TestAckTimeout(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")

	done := make(chan *Error, 1)
	client.GetTotalUnreadMessageCount(func(_ int64, err *Error) { done <- err })
	awaitCommand(t, tr, protocol.CommandUnreadCount)

	select {
	case err := <-done:
		require.NotNil(t, err)
		require.Equal(t, ErrAckTimeout, err.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("ack never timed out")
	}
}

// Server error frames surface through the completion with the server's
// code.
func TestServerErrorReply(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")

	done := make(chan *Error, 1)
	client.GetTotalUnreadMessageCount(func(_ int64, err *Error) { done <- err })
	req := awaitCommand(t, tr, protocol.CommandUnreadCount)
	tr.replyError(t, req, ErrInternalServerError, "boom")

	select {
	case err := <-done:
		require.NotNil(t, err)
		require.Equal(t, ErrInternalServerError, err.Code)
		require.Equal(t, "boom", err.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("completion never fired")
	}
}

// Operations issued without an open connection fail fast.
func TestSendRequiresConnection(t *testing.T) {
	client, _ := newTestClient(t)

	var got *Error
	client.GetTotalUnreadMessageCount(func(_ int64, err *Error) { got = err })
	require.NotNil(t, got)
	require.Equal(t, ErrConnectionRequired, got.Code)
}

// Losing the transport fails every pending command and arms the
// reconnect loop.
func TestPendingFlushedOnDrop(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")

	started := make(chan struct{}, 4)
	client.AddConnectionHandler("test", &reconnectRecorder{started: started})

	done := make(chan *Error, 1)
	client.GetTotalUnreadMessageCount(func(_ int64, err *Error) { done <- err })
	awaitCommand(t, tr, protocol.CommandUnreadCount)
	tr.drop()

	select {
	case err := <-done:
		require.NotNil(t, err)
		require.Equal(t, ErrWebSocketConnectionClosed, err.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("pending command not flushed")
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never started")
	}
}

// After an unexpected drop the client re-logs-in on a fresh transport
// and reports the reconnect cycle.
func TestReconnectAfterDrop(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")

	succeeded := make(chan struct{}, 1)
	client.AddConnectionHandler("test", &reconnectRecorder{succeeded: succeeded})

	tr.drop()

	require.Eventually(t, func() bool { return spool.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	tr2 := spool.latest(t)
	login := awaitCommand(t, tr2, protocol.CommandLogin)
	tr2.reply(t, login, loginResponse{User: User{UserID: "alice"}})

	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never succeeded")
	}
	require.Equal(t, StateOpen, client.ConnectionState())
}

// Disconnect wipes session state, handler registrations included.
func TestDisconnectClearsSession(t *testing.T) {
	client, spool := newTestClient(t)
	connectTestClient(t, client, spool, "alice")
	client.AddChannelHandler("test", &channelRecorder{})

	done := make(chan struct{})
	client.Disconnect(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect never completed")
	}

	_, sentLogout := spool.latest(t).lastCommand(t, protocol.CommandLogout)
	require.True(t, sentLogout)
	require.Nil(t, client.CurrentUser())
	require.Equal(t, StateClosed, client.ConnectionState())
	require.False(t, client.Reconnect())
	require.Empty(t, client.dispatcher.channel.records)
}

// Reconnect is refused when no session was ever established.
func TestReconnectWithoutSession(t *testing.T) {
	client, _ := newTestClient(t)
	require.False(t, client.Reconnect())
}

type reconnectRecorder struct {
	ConnectionHandlerAdapter
	started   chan struct{}
	succeeded chan struct{}
	failed    chan struct{}
}

func (r *reconnectRecorder) ReconnectStarted() {
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
}

func (r *reconnectRecorder) ReconnectSucceeded() {
	if r.succeeded != nil {
		select {
		case r.succeeded <- struct{}{}:
		default:
		}
	}
}

func (r *reconnectRecorder) ReconnectFailed() {
	if r.failed != nil {
		select {
		case r.failed <- struct{}{}:
		default:
		}
	}
}

// The retry delay doubles up to the ceiling and resets to the base
// after a successful reconnect.
func TestReconnectBackoffSchedule(t *testing.T) {
	client, _ := newTestClient(t)
	bo := client.conn.bo

	require.Equal(t, 10*time.Millisecond, bo.NextBackOff())
	require.Equal(t, 20*time.Millisecond, bo.NextBackOff())
	require.Equal(t, 40*time.Millisecond, bo.NextBackOff())
	require.Equal(t, 40*time.Millisecond, bo.NextBackOff())

	bo.Reset()
	require.Equal(t, 10*time.Millisecond, bo.NextBackOff())
}

func TestReconnectResetsBackoff(t *testing.T) {
	client, spool := newTestClient(t)
	tr := connectTestClient(t, client, spool, "alice")

	succeeded := make(chan struct{}, 1)
	client.AddConnectionHandler("test", &reconnectRecorder{succeeded: succeeded})

	tr.drop()
	require.Eventually(t, func() bool { return spool.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	tr2 := spool.latest(t)
	login := awaitCommand(t, tr2, protocol.CommandLogin)
	tr2.reply(t, login, loginResponse{User: User{UserID: "alice"}})

	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never succeeded")
	}
	require.Equal(t, 10*time.Millisecond, client.conn.bo.NextBackOff())
}

// An explicit Connect disarms any reconnect pending for the previous
// session, and the session token changes hands only when the new
// login succeeds: a failed attempt for another user leaves the old
// session resumable with its own token.
func TestConnectCancelsPendingReconnectAndKeepsToken(t *testing.T) {
	spool := &transportSpool{}
	params := DefaultParams("test-app", "ws://test.invalid/ws")
	params.TransportFactory = spool.factory
	params.AckTimeout = 200 * time.Millisecond
	params.LoginTimeout = 200 * time.Millisecond
	params.ReconnectBaseDelay = time.Hour
	params.ReconnectMaxDelay = time.Hour
	client, err := NewClient(params)
	require.NoError(t, err)

	done := make(chan *Error, 1)
	client.Connect("alice", "tok-a", func(_ *User, e *Error) { done <- e })
	require.Eventually(t, func() bool { return spool.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	tr := spool.latest(t)
	login := awaitCommand(t, tr, protocol.CommandLogin)
	tr.reply(t, login, loginResponse{User: User{UserID: "alice"}})
	select {
	case e := <-done:
		require.Nil(t, e)
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not complete")
	}

	tr.drop()
	require.Eventually(t, func() bool {
		client.conn.mux.Lock()
		defer client.conn.mux.Unlock()
		return client.conn.reconnectPending
	}, 2*time.Second, 5*time.Millisecond)

	failed := make(chan *Error, 1)
	client.Connect("bob", "tok-b", func(_ *User, e *Error) { failed <- e })

	client.conn.mux.Lock()
	require.False(t, client.conn.reconnectPending)
	require.Nil(t, client.conn.reconnectTimer)
	client.conn.mux.Unlock()

	require.Eventually(t, func() bool { return spool.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	tr2 := spool.latest(t)
	login2 := awaitCommand(t, tr2, protocol.CommandLogin)
	tr2.replyError(t, login2, 400302, "unknown user")
	select {
	case e := <-failed:
		require.NotNil(t, e)
	case <-time.After(2 * time.Second):
		t.Fatal("superseding connect never settled")
	}

	// The old session is still resumable with its own token.
	require.True(t, client.Reconnect())
	require.Eventually(t, func() bool { return spool.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	tr3 := spool.latest(t)
	login3 := awaitCommand(t, tr3, protocol.CommandLogin)
	var req loginRequest
	require.NoError(t, json.Unmarshal(login3.Payload, &req))
	require.Equal(t, "alice", req.UserID)
	require.Equal(t, "tok-a", req.AuthToken)
}
