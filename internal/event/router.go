// Package event routes whatsmeow events to the services that consume them.
// One router instance survives reconnects; a generation counter fences off
// late deliveries from handlers registered on a previous connection.
package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/cache"
	"zelador/internal/groups"
	"zelador/internal/identity"
	"zelador/internal/metrics"
	"zelador/internal/queue"
	"zelador/internal/store"
)

// ConnectionSink receives connection lifecycle transitions. The supervisor
// implements it.
type ConnectionSink interface {
	HandleConnected()
	HandleDisconnected(reason string)
	HandleLoggedOut(reason string)
}

// Commander dispatches an inbound message to the command layer.
type Commander interface {
	Dispatch(ctx context.Context, evt *events.Message, msg *store.Message) error
}

// Greeter reacts to membership changes and verification reactions.
type Greeter interface {
	MembersJoined(ctx context.Context, group types.JID, members []types.JID)
	MembersLeft(ctx context.Context, group types.JID, members []types.JID)
	VerifyReaction(ctx context.Context, evt *events.Message)
}

// PollDecrypter opens encrypted poll votes. The whatsmeow client satisfies
// it directly.
type PollDecrypter interface {
	DecryptPollVote(ctx context.Context, vote *events.Message) (*waE2E.PollVoteMessage, error)
}

// Deps collects everything the router feeds.
type Deps struct {
	Queue    *queue.Queue
	Tier     *cache.Tier
	Resolver *identity.Resolver
	Groups   *groups.Service
	Messages *store.MessageStore
	Chats    *store.ChatStore

	Connection ConnectionSink
	Commands   Commander
	Greeter    Greeter
	Polls      PollDecrypter

	HistoryLimit int
	Log          waLog.Logger
}

// Router is the single entry point for whatsmeow events.
type Router struct {
	queue    *queue.Queue
	tier     *cache.Tier
	resolver *identity.Resolver
	groups   *groups.Service
	messages *store.MessageStore
	chats    *store.ChatStore

	conn     ConnectionSink
	commands Commander
	greeter  Greeter
	polls    PollDecrypter

	historyLimit int
	log          waLog.Logger

	gen  atomic.Int64
	self atomic.Pointer[types.JID]
}

// NewRouter creates a router over the given dependencies.
func NewRouter(d Deps) *Router {
	return &Router{
		queue:        d.Queue,
		tier:         d.Tier,
		resolver:     d.Resolver,
		groups:       d.Groups,
		messages:     d.Messages,
		chats:        d.Chats,
		conn:         d.Connection,
		commands:     d.Commands,
		greeter:      d.Greeter,
		polls:        d.Polls,
		historyLimit: d.HistoryLimit,
		log:          d.Log.Sub("Events"),
	}
}

// NextGeneration invalidates all previously registered handlers and returns
// the generation the next registration must pass to Route.
func (r *Router) NextGeneration() int64 {
	return r.gen.Add(1)
}

// SetSelf records the device's own JID, used to attribute history messages
// sent from this account.
func (r *Router) SetSelf(jid types.JID) {
	j := jid.ToNonAD()
	r.self.Store(&j)
}

// Self returns the device's own JID, or the empty JID before login.
func (r *Router) Self() types.JID {
	if p := r.self.Load(); p != nil {
		return *p
	}
	return types.EmptyJID
}

// Route dispatches one event. Events arriving with a stale generation are
// dropped so a superseded connection cannot interleave with the current one.
// A panic in any handler is contained to that event.
func (r *Router) Route(gen int64, evt interface{}) {
	if gen != r.gen.Load() {
		r.log.Debugf("Dropping %s from stale handler generation %d", kindOf(evt), gen)
		return
	}

	kind := kindOf(evt)
	metrics.EventsTotal.WithLabelValues(kind).Inc()
	defer func() {
		if rec := recover(); rec != nil {
			metrics.EventErrorsTotal.WithLabelValues(kind).Inc()
			r.log.Errorf("Panic handling %s: %v\n%s", kind, rec, debug.Stack())
		}
	}()

	ctx := context.Background()

	switch e := evt.(type) {
	case *events.Message:
		r.handleMessage(ctx, e)
	case *events.UndecryptableMessage:
		r.log.Warnf("Undecryptable message %s from %s (unavailable: %v)", e.Info.ID, e.Info.Sender, e.IsUnavailable)
	case *events.Receipt:
		r.log.Debugf("Receipt %s from %s for %d messages", e.Type, e.SourceString(), len(e.MessageIDs))
	case *events.HistorySync:
		r.handleHistorySync(ctx, e)

	case *events.GroupInfo:
		r.handleGroupInfo(ctx, e)
	case *events.JoinedGroup:
		r.handleJoinedGroup(ctx, e)
	case *events.Picture:
		if e.JID.Server == types.GroupServer {
			r.groups.Invalidate(e.JID)
		}
		r.log.Debugf("Picture change for %s (id %s)", e.JID, e.PictureID)

	case *events.Contact:
		r.handleContact(e)
	case *events.PushName:
		r.handlePushName(e)
	case *events.BusinessName:
		r.handleBusinessName(e)
	case *events.PairSuccess:
		r.handlePairSuccess(ctx, e)

	case *events.DeleteChat:
		r.handleDeleteChat(ctx, e.JID)
	case *events.ClearChat:
		r.tier.Recents.Drop(e.JID.String())
		r.log.Debugf("Chat %s cleared", e.JID)

	case *events.Presence:
		r.log.Debugf("Presence from %s (unavailable: %v)", e.From, e.Unavailable)
	case *events.ChatPresence:
		r.log.Debugf("Chat presence in %s from %s: %s", e.Chat, e.Sender, e.State)

	case *events.Connected:
		r.log.Infof("Connected to WhatsApp")
		r.conn.HandleConnected()
	case *events.Disconnected:
		r.conn.HandleDisconnected("connection closed")
	case *events.StreamReplaced:
		r.log.Warnf("Stream replaced by another session")
		r.conn.HandleDisconnected("stream replaced")
	case *events.StreamError:
		r.log.Errorf("Stream error: code %s", e.Code)
		r.conn.HandleDisconnected(fmt.Sprintf("stream error %s", e.Code))
	case *events.ConnectFailure:
		r.log.Errorf("Connect failure: %s (%s)", e.Reason, e.Message)
		r.conn.HandleDisconnected(fmt.Sprintf("connect failure %s", e.Reason))
	case *events.TemporaryBan:
		r.log.Errorf("Temporary ban: code=%d, expires=%s", e.Code, e.Expire)
		r.conn.HandleDisconnected("temporary ban")
	case *events.ClientOutdated:
		r.log.Errorf("Client outdated - update required")
		r.conn.HandleDisconnected("client outdated")
	case *events.LoggedOut:
		r.log.Warnf("Logged out: %v", e.Reason)
		r.conn.HandleLoggedOut(fmt.Sprintf("%v", e.Reason))
	case *events.KeepAliveTimeout:
		r.log.Warnf("Keepalive timeout (%d misses, last success %s)", e.ErrorCount, e.LastSuccess)
	case *events.KeepAliveRestored:
		r.log.Infof("Keepalive restored")

	case *events.OfflineSyncPreview:
		r.log.Infof("Offline sync preview: %d messages, %d receipts, %d notifications", e.Messages, e.Receipts, e.Notifications)
	case *events.OfflineSyncCompleted:
		r.log.Infof("Offline sync completed with %d items", e.Count)
	case *events.AppStateSyncComplete:
		r.log.Debugf("App state sync complete: %s", e.Name)
	case *events.Blocklist:
		r.log.Infof("Blocklist update with %d changes", len(e.Changes))
	case *events.CallOffer:
		r.log.Infof("Incoming call %s from %s (ignored)", e.CallID, e.CallCreator)
	case *events.CallTerminate:
		r.log.Debugf("Call %s terminated: %s", e.CallID, e.Reason)
	case *events.NewsletterJoin:
		r.log.Infof("Joined newsletter %s", e.ID)
	case *events.NewsletterLeave:
		r.log.Infof("Left newsletter %s", e.ID)

	default:
		r.log.Debugf("Unhandled %s", kind)
	}
}

// kindOf names an event type for logs and metric labels.
func kindOf(evt interface{}) string {
	name := fmt.Sprintf("%T", evt)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
