package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/DriftChat/internal/protocol"
	"github.com/fenggwsx/DriftChat/transport"
)

// fakeTransport is an in-memory transport. Tests inspect the frames a
// client sent and inject replies and pushes through the sink.
type fakeTransport struct {
	mu      sync.Mutex
	sink    transport.Sink
	sent    [][]byte
	openErr error
	sendErr error
	closed  bool
}

func (f *fakeTransport) Open(url string, sink transport.Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.sink = sink
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	sink := f.sink
	alreadyClosed := f.closed
	f.closed = true
	f.mu.Unlock()
	if sink != nil && !alreadyClosed {
		sink.OnClose(true)
	}
	return nil
}

// drop simulates an unexpected connection loss.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	sink := f.sink
	f.closed = true
	f.mu.Unlock()
	if sink != nil {
		sink.OnClose(false)
	}
}

func (f *fakeTransport) sentCommands(t *testing.T) []protocol.Command {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Command, 0, len(f.sent))
	for _, raw := range f.sent {
		cmd, err := protocol.Parse(raw)
		require.NoError(t, err)
		out = append(out, cmd)
	}
	return out
}

// lastCommand returns the most recent frame of the given type, if any.
func (f *fakeTransport) lastCommand(t *testing.T, ct protocol.CommandType) (protocol.Command, bool) {
	t.Helper()
	cmds := f.sentCommands(t)
	for i := len(cmds) - 1; i >= 0; i-- {
		if cmds[i].Type == ct {
			return cmds[i], true
		}
	}
	return protocol.Command{}, false
}

func (f *fakeTransport) deliver(t *testing.T, cmd protocol.Command) {
	t.Helper()
	raw, err := protocol.Marshal(cmd)
	require.NoError(t, err)
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	require.NotNil(t, sink)
	sink.OnMessage(raw)
}

// reply answers the request with a payload of the same command type.
func (f *fakeTransport) reply(t *testing.T, req protocol.Command, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.deliver(t, protocol.Command{Type: req.Type, RequestID: req.RequestID, Payload: raw})
}

// replyError answers the request with a server error frame.
func (f *fakeTransport) replyError(t *testing.T, req protocol.Command, code int64, message string) {
	t.Helper()
	raw, err := json.Marshal(protocol.ErrorPayload{Code: code, Message: message})
	require.NoError(t, err)
	f.deliver(t, protocol.Command{Type: protocol.CommandError, RequestID: req.RequestID, Payload: raw})
}

// push delivers an unsolicited frame.
func (f *fakeTransport) push(t *testing.T, ct protocol.CommandType, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.deliver(t, protocol.Command{Type: ct, Payload: raw})
}

// transportSpool hands a fresh fake to each connection attempt and
// remembers them in order.
type transportSpool struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (s *transportSpool) factory() transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &fakeTransport{}
	s.transports = append(s.transports, f)
	return f
}

func (s *transportSpool) latest(t *testing.T) *fakeTransport {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.transports)
	return s.transports[len(s.transports)-1]
}

func (s *transportSpool) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transports)
}

func newTestClient(t *testing.T) (*Client, *transportSpool) {
	t.Helper()
	spool := &transportSpool{}
	params := DefaultParams("test-app", "ws://test.invalid/ws")
	params.TransportFactory = spool.factory
	params.AckTimeout = 200 * time.Millisecond
	params.LoginTimeout = 200 * time.Millisecond
	params.ReconnectBaseDelay = 10 * time.Millisecond
	params.ReconnectMaxDelay = 40 * time.Millisecond
	client, err := NewClient(params)
	require.NoError(t, err)
	return client, spool
}

// awaitCommand polls until the transport has sent a frame of the given
// type.
func awaitCommand(t *testing.T, f *fakeTransport, ct protocol.CommandType) protocol.Command {
	t.Helper()
	var cmd protocol.Command
	require.Eventually(t, func() bool {
		var ok bool
		cmd, ok = f.lastCommand(t, ct)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return cmd
}

// connectTestClient drives a full login handshake for userID.
func connectTestClient(t *testing.T, client *Client, spool *transportSpool, userID string) *fakeTransport {
	t.Helper()
	done := make(chan *Error, 1)
	client.Connect(userID, "", func(_ *User, err *Error) {
		done <- err
	})
	require.Eventually(t, func() bool { return spool.count() > 0 }, 2*time.Second, 5*time.Millisecond)
	tr := spool.latest(t)
	login := awaitCommand(t, tr, protocol.CommandLogin)
	tr.reply(t, login, loginResponse{User: User{UserID: userID, Nickname: userID}})
	select {
	case err := <-done:
		require.Nil(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not complete")
	}
	return tr
}
