package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Marshal serializes a command for the transport. The payload, when
// non-nil, must marshal to a JSON object.
func Marshal(cmd Command) ([]byte, error) {
	if cmd.Type == "" {
		return nil, errors.New("command type empty")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, errors.Wrap(err, "marshal command")
	}
	return data, nil
}

// Parse decodes a single inbound frame. Unknown command types are not an
// error here; routing decides what to drop.
func Parse(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, errors.Wrap(err, "parse command")
	}
	if cmd.Type == "" {
		return Command{}, errors.New("frame missing cmd field")
	}
	return cmd, nil
}

// ParseError extracts the error envelope from a reply payload. A zero
// code means the reply succeeded.
func ParseError(payload json.RawMessage) ErrorPayload {
	var ep ErrorPayload
	if len(payload) == 0 {
		return ep
	}
	// Best effort; a payload that is not an object carries no error.
	_ = json.Unmarshal(payload, &ep)
	return ep
}
