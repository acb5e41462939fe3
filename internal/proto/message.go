package proto

import (
	"encoding/json"
	"time"

	"github.com/vovakirdan/wiremsg-server/internal/store"
)

// Message is the wire shape of a stored message. The same JSON is returned by the
// HTTP API and pushed over the live connection, so clients parse it one way.
// Direct messages carry Receiver, group messages carry Group.
type Message struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver,omitempty"`
	Group     *int64    `json:"group,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FromStore maps a persisted message onto the wire shape.
func FromStore(m *store.Message) Message {
	out := Message{
		ID:        m.ID,
		Sender:    m.Sender,
		Group:     m.GroupID,
		Text:      m.Text,
		Timestamp: m.CreatedAt.UTC(),
	}
	if m.Receiver != nil {
		out.Receiver = *m.Receiver
	}
	return out
}

// FromStoreList maps a history page.
func FromStoreList(msgs []*store.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, FromStore(m))
	}
	return out
}

// Encode serializes a persisted message for a live push.
func Encode(m *store.Message) ([]byte, error) {
	return json.Marshal(FromStore(m))
}

// Error describes a protocol-level error frame.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
