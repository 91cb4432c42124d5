package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	payload, err := json.Marshal(map[string]string{"channel_url": "c1"})
	require.NoError(t, err)

	raw, err := Marshal(Command{
		Type:      CommandUserMessage,
		RequestID: "req-1",
		Payload:   payload,
	})
	require.NoError(t, err)

	cmd, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, CommandUserMessage, cmd.Type)
	require.Equal(t, "req-1", cmd.RequestID)
	require.JSONEq(t, string(payload), string(cmd.Payload))
	require.True(t, cmd.IsReply())
}

func TestMarshalRejectsEmptyType(t *testing.T) {
	_, err := Marshal(Command{})
	require.Error(t, err)
}

func TestParseRejectsMissingType(t *testing.T) {
	_, err := Parse([]byte(`{"req_id":"x"}`))
	require.Error(t, err)
}

func TestParseRejectsMalformedFrame(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	require.Error(t, err)
}

// A push carries no request ID and is not a reply.
func TestIsReply(t *testing.T) {
	cmd, err := Parse([]byte(`{"cmd":"message"}`))
	require.NoError(t, err)
	require.False(t, cmd.IsReply())
}

func TestParseErrorBestEffort(t *testing.T) {
	ep := ParseError([]byte(`{"code":500901,"message":"boom"}`))
	require.Equal(t, int64(500901), ep.Code)
	require.Equal(t, "boom", ep.Message)

	require.Zero(t, ParseError(nil).Code)
	require.Zero(t, ParseError([]byte(`"not an object"`)).Code)
	require.Zero(t, ParseError([]byte(`{"ok":true}`)).Code)
}
