package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocket is the default Transport, one frame per text message.
type WebSocket struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	sendCh chan []byte
	cancel context.CancelFunc
	closed bool
}

// NewWebSocket returns an unopened websocket transport.
func NewWebSocket() *WebSocket {
	return &WebSocket{}
}

// Open dials the endpoint and starts the read and write pumps.
func (w *WebSocket) Open(url string, sink Sink) error {
	if sink == nil {
		panic("transport: nil sink")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return errors.New("transport already open")
	}

	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", url)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.conn = conn
	w.sendCh = make(chan []byte, 64)
	w.cancel = cancel
	w.closed = false

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.readLoop(ctx, conn, sink) })
	g.Go(func() error { return w.writeLoop(ctx, conn) })
	// A failed write pump cancels the context but leaves the read pump
	// blocked in ReadMessage until the read deadline; closing the
	// connection unblocks it so OnClose fires promptly.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go func() {
		err := g.Wait()
		cancel()
		w.mu.Lock()
		clean := w.closed
		w.conn = nil
		w.mu.Unlock()
		if err != nil && !clean {
			jww.WARN.Printf("websocket closed: %v", err)
		}
		sink.OnClose(clean)
	}()

	return nil
}

// Send queues one frame for transmission.
func (w *WebSocket) Send(data []byte) error {
	w.mu.Lock()
	ch := w.sendCh
	open := w.conn != nil
	w.mu.Unlock()
	if !open {
		return errors.New("transport not open")
	}
	select {
	case ch <- data:
		return nil
	default:
		return errors.New("transport send buffer full")
	}
}

// Close requests a clean shutdown.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	conn := w.conn
	if conn == nil {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	cancel := w.cancel
	w.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		jww.DEBUG.Printf("websocket close frame: %v", err)
	}
	cancel()
	return conn.Close()
}

func (w *WebSocket) readLoop(ctx context.Context, conn *websocket.Conn, sink Sink) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				return errors.Wrap(err, "read")
			}
			return err
		}
		sink.OnMessage(raw)
	}
}

func (w *WebSocket) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return errors.Wrap(err, "ping")
			}
		case data := <-w.sendCh:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return errors.Wrap(err, "write")
			}
		}
	}
}
