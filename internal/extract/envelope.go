package extract

import (
	"encoding/json"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"zelador/internal/store"
)

// rawInfo is the delivery half of the stored payload. Field names are part
// of the stored format: the boot backfill mines senderAlt by JSON path.
type rawInfo struct {
	ID        string `json:"id"`
	Chat      string `json:"chat"`
	Sender    string `json:"sender"`
	SenderAlt string `json:"senderAlt,omitempty"`
	PushName  string `json:"pushName,omitempty"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"fromMe,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Ephemeral bool   `json:"ephemeral,omitempty"`
}

type rawEnvelope struct {
	Info    rawInfo         `json:"info"`
	Message json.RawMessage `json:"message,omitempty"`
}

// RawEnvelope serializes an inbound event for storage: delivery info plus
// the full payload in protojson form.
func RawEnvelope(evt *events.Message) json.RawMessage {
	info := rawInfo{
		ID:        evt.Info.ID,
		Chat:      evt.Info.Chat.String(),
		Sender:    evt.Info.Sender.String(),
		PushName:  evt.Info.PushName,
		Timestamp: evt.Info.Timestamp.Unix(),
		FromMe:    evt.Info.IsFromMe,
		Kind:      Kind(evt.Message),
		Ephemeral: evt.IsEphemeral,
	}
	if !evt.Info.SenderAlt.IsEmpty() {
		info.SenderAlt = evt.Info.SenderAlt.String()
	}
	return marshalEnvelope(info, evt.Message)
}

// FromEvent builds the storable row for an inbound message. sender must
// already be canonical.
func FromEvent(evt *events.Message, sender types.JID) *store.Message {
	return &store.Message{
		ChatID:    evt.Info.Chat,
		MessageID: evt.Info.ID,
		SenderID:  sender,
		Content:   Text(evt.Message),
		Raw:       RawEnvelope(evt),
		Timestamp: evt.Info.Timestamp,
		CreatedAt: time.Now().UTC(),
	}
}

// OutgoingEnvelope serializes a message this session sent, in the same
// stored format as inbound ones.
func OutgoingEnvelope(id string, chat, sender types.JID, ts time.Time, msg *waE2E.Message) json.RawMessage {
	info := rawInfo{
		ID:        id,
		Chat:      chat.String(),
		Sender:    sender.String(),
		Timestamp: ts.Unix(),
		FromMe:    true,
		Kind:      Kind(msg),
	}
	return marshalEnvelope(info, msg)
}

func marshalEnvelope(info rawInfo, msg proto.Message) json.RawMessage {
	env := rawEnvelope{Info: info}
	if msg != nil {
		if body, err := protojson.Marshal(msg); err == nil {
			env.Message = body
		}
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil
	}
	return out
}

// ParseEnvelope recovers the protobuf payload from a stored raw envelope.
func ParseEnvelope(raw json.RawMessage) (*waE2E.Message, error) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if len(env.Message) == 0 {
		return nil, nil
	}
	msg := &waE2E.Message{}
	if err := protojson.Unmarshal(env.Message, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
