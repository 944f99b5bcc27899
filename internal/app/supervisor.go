package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coreos/go-systemd/v22/daemon"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"zelador/internal/auth"
	"zelador/internal/event"
	"zelador/internal/infra/config"
	"zelador/internal/metrics"
)

// State is a connection lifecycle state. The numeric values feed the
// connection gauge directly.
type State int32

const (
	StateInit State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateReconnectDelay
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnectDelay:
		return "reconnect-delay"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

var errNoClient = errors.New("no active client")

// SupervisorDeps collects what the supervisor drives. The router is
// attached separately because it needs the supervisor as its connection
// sink.
type SupervisorDeps struct {
	Session   *auth.Session
	QR        *auth.QRHandler
	Reconnect config.ReconnectConfig
	Device    string

	// Stop is called when the session becomes unrecoverable (logged out
	// remotely) so the process can exit and the operator re-pair.
	Stop func()

	Log waLog.Logger
}

// Supervisor owns the provider client lifecycle: pairing, connecting,
// bounded reconnection, and terminal logout. Each (re)connect builds a
// fresh client under a new router generation, so events from a torn-down
// connection can never reach live handlers. It satisfies the router's
// ConnectionSink and PollDecrypter contracts.
type Supervisor struct {
	session *auth.Session
	router  *event.Router
	qr      *auth.QRHandler
	cfg     config.ReconnectConfig
	stop    func()
	log     waLog.Logger

	ctx context.Context

	// onClient hooks re-bind dependents to every new client instance;
	// onOpen hooks run once per established connection.
	onClient []func(*whatsmeow.Client)
	onOpen   []func(ctx context.Context, c *whatsmeow.Client)

	mu          sync.Mutex
	state       State
	client      *whatsmeow.Client
	device      *wastore.Device
	retry       *time.Timer
	attempts    int
	windowStart time.Time
	delays      *backoff.ExponentialBackOff
	notified    bool
}

// NewSupervisor creates the supervisor. Ctx bounds every operation it
// starts on its own, including reconnect attempts.
func NewSupervisor(ctx context.Context, d SupervisorDeps) *Supervisor {
	if d.Device != "" {
		wastore.DeviceProps.Os = proto.String(d.Device)
	}

	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = d.Reconnect.Base
	delays.RandomizationFactor = 0
	delays.Multiplier = 2
	delays.MaxInterval = d.Reconnect.Window

	return &Supervisor{
		session: d.Session,
		qr:      d.QR,
		cfg:     d.Reconnect,
		stop:    d.Stop,
		log:     d.Log.Sub("Supervisor"),
		ctx:     ctx,
		delays:  delays,
	}
}

// AttachRouter wires the event router (delayed initialization). Must be
// called before the first Connect.
func (s *Supervisor) AttachRouter(r *event.Router) {
	s.router = r
}

// OnClient registers a hook run with every new client instance, before it
// connects. Registration must finish before the first Connect.
func (s *Supervisor) OnClient(fn func(*whatsmeow.Client)) {
	s.onClient = append(s.onClient, fn)
}

// OnOpen registers a hook run after every established connection.
func (s *Supervisor) OnOpen(fn func(ctx context.Context, c *whatsmeow.Client)) {
	s.onOpen = append(s.onOpen, fn)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Online reports whether the connection is open and usable.
func (s *Supervisor) Online() bool {
	s.mu.Lock()
	client, state := s.client, s.state
	s.mu.Unlock()
	return state == StateOpen && client != nil && client.IsConnected()
}

// Self returns the signed-in account id, or the zero value before pairing.
func (s *Supervisor) Self() types.JID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.client.Store.ID != nil {
		return *s.client.Store.ID
	}
	return types.JID{}
}

// Connect starts a connection attempt. It is a no-op while an attempt is
// already running, the connection is open, or the supervisor reached a
// terminal state.
func (s *Supervisor) Connect() error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting, StateOpen, StateClosed, StateShutdown:
		s.mu.Unlock()
		return nil
	}
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()
	return s.connect()
}

// connect builds a fresh client for the stored device and opens the
// socket. Failures arm the retry schedule before returning.
func (s *Supervisor) connect() error {
	device, err := s.session.Device(s.ctx)
	if err != nil {
		err = fmt.Errorf("failed to load device: %w", err)
		s.connectFailed(err)
		return err
	}

	client := whatsmeow.NewClient(device, s.log.Sub("Client"))
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	gen := s.router.NextGeneration()
	client.AddEventHandler(func(evt interface{}) {
		s.router.Route(gen, evt)
	})

	s.mu.Lock()
	s.client = client
	s.device = device
	hooks := append(([]func(*whatsmeow.Client))(nil), s.onClient...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(client)
	}

	if device.ID == nil {
		return s.pair(client)
	}

	s.log.Infof("Connecting as %s", device.ID)
	if err := client.Connect(); err != nil {
		s.connectFailed(err)
		return err
	}
	return nil
}

// pair drives the QR flow for an unpaired device. The QR channel must be
// claimed before the socket connects.
func (s *Supervisor) pair(client *whatsmeow.Client) error {
	qrCh, err := client.GetQRChannel(s.ctx)
	if err != nil {
		s.connectFailed(fmt.Errorf("failed to open QR channel: %w", err))
		return err
	}
	if err := client.Connect(); err != nil {
		s.connectFailed(err)
		return err
	}
	go func() {
		if err := s.qr.Watch(s.ctx, qrCh); err != nil {
			s.log.Errorf("Pairing failed: %v", err)
			client.Disconnect()
			s.HandleDisconnected("pairing failed")
		}
	}()
	return nil
}

func (s *Supervisor) connectFailed(err error) {
	s.log.Errorf("Connection attempt failed: %v", err)
	s.scheduleReconnect("connect failed")
}

// HandleConnected marks the connection open and fans out the open hooks.
func (s *Supervisor) HandleConnected() {
	s.mu.Lock()
	if s.state == StateShutdown || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateOpen)
	s.attempts = 0
	s.windowStart = time.Time{}
	s.delays.Reset()
	client := s.client
	first := !s.notified
	s.notified = true
	openHooks := append(([]func(context.Context, *whatsmeow.Client))(nil), s.onOpen...)
	s.mu.Unlock()

	if client != nil && client.Store.ID != nil {
		s.router.SetSelf(*client.Store.ID)
	}
	s.log.Infof("Connection open")

	if first {
		if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			s.log.Debugf("Failed to notify service manager: %v", err)
		}
	}

	go func() {
		for _, fn := range openHooks {
			fn(s.ctx, client)
		}
	}()
}

// HandleDisconnected arms the retry schedule. Duplicate signals while a
// retry is pending collapse into it.
func (s *Supervisor) HandleDisconnected(reason string) {
	s.scheduleReconnect(reason)
}

// HandleLoggedOut wipes the stored credentials and parks the supervisor in
// its terminal state. No reconnection is attempted; the next start pairs
// from scratch.
func (s *Supervisor) HandleLoggedOut(reason string) {
	s.mu.Lock()
	if s.state == StateShutdown || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.setStateLocked(StateClosed)
	client := s.client
	device := s.device
	s.mu.Unlock()

	s.log.Errorf("Session logged out (%s), credentials are gone; re-pair on next start", reason)
	if client != nil {
		client.RemoveEventHandlers()
		client.Disconnect()
	}
	if err := s.session.Wipe(s.ctx, device); err != nil {
		s.log.Errorf("Failed to wipe credentials: %v", err)
	}
	if s.stop != nil {
		s.stop()
	}
}

func (s *Supervisor) scheduleReconnect(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateShutdown || s.state == StateClosed {
		return
	}
	if s.retry != nil {
		return
	}

	delay := s.nextDelayLocked()
	s.setStateLocked(StateReconnectDelay)
	metrics.ReconnectsTotal.Inc()
	s.log.Warnf("Disconnected (%s), reconnecting in %s (attempt %d/%d)",
		reason, delay, s.attempts, s.cfg.MaxAttempts)
	s.retry = time.AfterFunc(delay, s.retryNow)
}

// nextDelayLocked walks the exponential schedule inside a rolling window.
// Exhausting the window's attempt budget yields one window-long hold-off,
// after which the schedule starts over.
func (s *Supervisor) nextDelayLocked() time.Duration {
	now := time.Now()
	if s.windowStart.IsZero() || now.Sub(s.windowStart) >= s.cfg.Window {
		s.windowStart = now
		s.attempts = 0
		s.delays.Reset()
	}
	s.attempts++
	if s.attempts > s.cfg.MaxAttempts {
		s.log.Warnf("Reconnect budget exhausted (%d attempts in %s), holding off",
			s.cfg.MaxAttempts, s.cfg.Window)
		s.windowStart = time.Time{}
		s.attempts = 0
		s.delays.Reset()
		return s.cfg.Window
	}
	return s.delays.NextBackOff()
}

func (s *Supervisor) retryNow() {
	s.mu.Lock()
	s.retry = nil
	if s.state != StateReconnectDelay {
		s.mu.Unlock()
		return
	}
	if old := s.client; old != nil {
		old.RemoveEventHandlers()
		old.Disconnect()
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	// connect arms the next retry itself on failure.
	_ = s.connect()
}

// DecryptPollVote opens one encrypted poll vote with the active client.
func (s *Supervisor) DecryptPollVote(ctx context.Context, vote *events.Message) (*waE2E.PollVoteMessage, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil, errNoClient
	}
	return client.DecryptPollVote(ctx, vote)
}

// Shutdown tears the connection down for good.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.state == StateShutdown {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateShutdown)
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	client := s.client
	s.mu.Unlock()

	if client != nil {
		client.RemoveEventHandlers()
		client.Disconnect()
	}
}

func (s *Supervisor) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.log.Debugf("Connection state %s -> %s", s.state, st)
	s.state = st
	metrics.ConnectionState.Set(float64(st))
}
