// Package send wraps outbound messaging: build, deliver, persist.
package send

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"zelador/internal/extract"
	"zelador/internal/queue"
	"zelador/internal/store"
)

// Result mirrors the provider's send acknowledgement.
type Result struct {
	ID        string
	ServerID  int
	Timestamp time.Time
	Sender    types.JID
}

// Option shapes an outbound text message.
type Option func(*options)

type options struct {
	quoted    *events.Message
	ephemeral uint32
	mentions  []types.JID
}

// WithQuoted attaches the inbound event as the quoted context.
func WithQuoted(evt *events.Message) Option {
	return func(o *options) { o.quoted = evt }
}

// WithEphemeral sets the disappearing timer, in seconds. Pass the inbound
// chat's own hint so replies honor the chat setting.
func WithEphemeral(seconds uint32) Option {
	return func(o *options) { o.ephemeral = seconds }
}

// WithMentions tags the given ids in the message.
func WithMentions(jids ...types.JID) Option {
	return func(o *options) { o.mentions = jids }
}

// Service delivers messages and persists what was sent through the write
// queue. Persistence failures never fail the send.
type Service struct {
	client *whatsmeow.Client
	queue  *queue.Queue
	log    waLog.Logger
}

// New creates the service. The client is attached later via SetClient.
func New(q *queue.Queue, log waLog.Logger) *Service {
	return &Service{
		queue: q,
		log:   log.Sub("Send"),
	}
}

// SetClient attaches the provider session (delayed initialization).
func (s *Service) SetClient(c *whatsmeow.Client) {
	s.client = c
}

// SendText sends a text message shaped by the given options.
func (s *Service) SendText(ctx context.Context, to types.JID, text string, opts ...Option) (*Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return s.SendAndStore(ctx, to, buildText(text, &o))
}

// SendTagged sends a text message mentioning the given ids.
func (s *Service) SendTagged(ctx context.Context, to types.JID, text string, mentions []types.JID, opts ...Option) (*Result, error) {
	return s.SendText(ctx, to, text, append(opts, WithMentions(mentions...))...)
}

// SendAndStore delivers a prebuilt payload, then queues the sent message
// for storage.
func (s *Service) SendAndStore(ctx context.Context, to types.JID, msg *waE2E.Message) (*Result, error) {
	if s.client == nil {
		return nil, fmt.Errorf("client not initialized")
	}

	resp, err := s.client.SendMessage(ctx, to, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	result := &Result{
		ID:        resp.ID,
		ServerID:  int(resp.ServerID),
		Timestamp: resp.Timestamp,
		Sender:    resp.Sender,
	}
	s.storeSent(to, result, msg)
	return result, nil
}

// storeSent queues the storage row for an outbound message.
func (s *Service) storeSent(to types.JID, result *Result, msg *waE2E.Message) {
	sender := result.Sender.ToNonAD()
	if sender.IsEmpty() && s.client.Store.ID != nil {
		sender = s.client.Store.ID.ToNonAD()
	}
	s.queue.EnqueueMessage(&store.Message{
		ChatID:    to,
		MessageID: result.ID,
		SenderID:  sender,
		Content:   extract.Text(msg),
		Raw:       extract.OutgoingEnvelope(result.ID, to, sender, result.Timestamp, msg),
		Timestamp: result.Timestamp,
		CreatedAt: time.Now().UTC(),
	})
}

// buildText assembles the outbound payload. Plain conversation when no
// context is needed, extended text otherwise.
func buildText(text string, o *options) *waE2E.Message {
	if o.quoted == nil && o.ephemeral == 0 && len(o.mentions) == 0 {
		return &waE2E.Message{Conversation: proto.String(text)}
	}

	ext := &waE2E.ExtendedTextMessage{
		Text:        proto.String(text),
		ContextInfo: &waE2E.ContextInfo{},
	}
	if o.quoted != nil {
		ext.ContextInfo.StanzaID = proto.String(o.quoted.Info.ID)
		ext.ContextInfo.Participant = proto.String(o.quoted.Info.Sender.String())
		ext.ContextInfo.QuotedMessage = o.quoted.Message
	}
	if o.ephemeral > 0 {
		ext.ContextInfo.Expiration = proto.Uint32(o.ephemeral)
	}
	if len(o.mentions) > 0 {
		mentioned := make([]string, 0, len(o.mentions))
		for _, jid := range o.mentions {
			mentioned = append(mentioned, jid.String())
		}
		ext.ContextInfo.MentionedJID = mentioned
	}
	return &waE2E.Message{ExtendedTextMessage: ext}
}
