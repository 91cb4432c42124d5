// Package transport defines the socket layer contract the chat core
// drives, together with a production WebSocket implementation. The core
// owns framing and parsing; a Transport only moves opaque frames.
package transport

// Sink receives inbound traffic from a Transport. OnMessage is invoked
// from a single reader goroutine per connection, so implementations see
// frames in arrival order. OnClose fires exactly once per successful
// Open; wasClean is true only for a locally requested shutdown or a
// normal close handshake.
type Sink interface {
	OnMessage(raw []byte)
	OnClose(wasClean bool)
}

// Transport is a single logical connection to the chat backend.
// Implementations must be safe for concurrent Send calls.
type Transport interface {
	// Open dials the endpoint and starts delivering frames to sink.
	Open(url string, sink Sink) error

	// Send transmits one frame. It fails when the connection is down.
	Send(data []byte) error

	// Close tears the connection down; the sink's OnClose reports a
	// clean closure. Closing an unopened transport is a no-op.
	Close() error
}
