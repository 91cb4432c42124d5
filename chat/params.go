package chat

import (
	"time"

	"github.com/fenggwsx/DriftChat/transport"
)

// Params configures a Client. Zero-value duration fields fall back to
// the defaults below.
type Params struct {
	// AppID identifies the application to the backend.
	AppID string

	// WSURL is the websocket endpoint of the chat backend.
	WSURL string

	// TransportFactory produces the transport for each connection
	// attempt. Defaults to the gorilla/websocket implementation.
	TransportFactory func() transport.Transport

	// AckTimeout bounds the wait for a command acknowledgement.
	AckTimeout time.Duration

	// LoginTimeout bounds the login handshake.
	LoginTimeout time.Duration

	// ReconnectBaseDelay is the first automatic-reconnect delay; the
	// delay doubles per consecutive failure up to ReconnectMaxDelay and
	// resets after a successful reconnect.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// CachePath, when set, enables local persistence of session
	// resumption data and pending push tokens at the given sqlite path.
	CachePath string
}

const (
	defaultAckTimeout         = 10 * time.Second
	defaultLoginTimeout       = 15 * time.Second
	defaultReconnectBaseDelay = 3 * time.Second
	defaultReconnectMaxDelay  = 48 * time.Second
)

// DefaultParams returns Params with production defaults.
func DefaultParams(appID, wsURL string) Params {
	return Params{
		AppID:              appID,
		WSURL:              wsURL,
		AckTimeout:         defaultAckTimeout,
		LoginTimeout:       defaultLoginTimeout,
		ReconnectBaseDelay: defaultReconnectBaseDelay,
		ReconnectMaxDelay:  defaultReconnectMaxDelay,
	}
}

func (p *Params) normalize() {
	if p.TransportFactory == nil {
		p.TransportFactory = func() transport.Transport {
			return transport.NewWebSocket()
		}
	}
	if p.AckTimeout <= 0 {
		p.AckTimeout = defaultAckTimeout
	}
	if p.LoginTimeout <= 0 {
		p.LoginTimeout = defaultLoginTimeout
	}
	if p.ReconnectBaseDelay <= 0 {
		p.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if p.ReconnectMaxDelay <= 0 {
		p.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
}
