package relay

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// clientMessage is the inbound envelope: a single text payload per frame.
type clientMessage struct {
	Text string `json:"text"`
}

// serverMessage is the outbound envelope. Type is "response" for replies and
// "error" for malformed-input reports; exactly one of Text/Message is set.
type serverMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

func responseFrame(text string) []byte {
	b, _ := json.Marshal(serverMessage{Type: "response", Text: text})
	return b
}

func errorFrame(msg string) []byte {
	b, _ := json.Marshal(serverMessage{Type: "error", Message: msg})
	return b
}

// decodeClientMessage validates an inbound frame against the expected envelope.
// It rejects frames that are not JSON objects, carry a non-string text field, or
// hold only whitespace, so malformed input never reaches the transcript.
func decodeClientMessage(data []byte) (clientMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return clientMessage{}, errors.Wrap(err, "decode message envelope")
	}
	field, ok := raw["text"]
	if !ok {
		return clientMessage{}, errors.New("missing text field")
	}
	var text string
	if err := json.Unmarshal(field, &text); err != nil {
		return clientMessage{}, errors.Wrap(err, "text field is not a string")
	}
	if strings.TrimSpace(text) == "" {
		return clientMessage{}, errors.New("empty text field")
	}
	return clientMessage{Text: text}, nil
}
