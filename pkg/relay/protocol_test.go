package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeClientMessage(t *testing.T) {
	msg, err := decodeClientMessage([]byte(`{"text":"hello there"}`))
	require.NoError(t, err)
	require.Equal(t, "hello there", msg.Text)

	// Extra fields are tolerated; only the envelope shape is enforced.
	msg, err = decodeClientMessage([]byte(`{"text":"hi","source":"voice"}`))
	require.NoError(t, err)
	require.Equal(t, "hi", msg.Text)

	for name, payload := range map[string]string{
		"not json":        `hello`,
		"json array":      `["text"]`,
		"missing field":   `{"message":"hi"}`,
		"non-string text": `{"text":42}`,
		"whitespace only": `{"text":"  \n"}`,
	} {
		_, err := decodeClientMessage([]byte(payload))
		require.Error(t, err, name)
	}
}

func TestServerFrames(t *testing.T) {
	var resp serverMessage
	require.NoError(t, json.Unmarshal(responseFrame("hi"), &resp))
	require.Equal(t, serverMessage{Type: "response", Text: "hi"}, resp)

	// Omitted fields must not inherit values from an earlier decode, so each
	// frame gets a zero-valued destination.
	var errMsg serverMessage
	require.NoError(t, json.Unmarshal(errorFrame("bad envelope"), &errMsg))
	require.Equal(t, serverMessage{Type: "error", Message: "bad envelope"}, errMsg)
}

func TestSessionStateString(t *testing.T) {
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "active", StateActive.String())
	require.Equal(t, "closed", StateClosed.String())
}
