package broadcast

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	waBinary "go.mau.fi/whatsmeow/binary"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/infra/config"
	"zelador/internal/send"
)

// scriptedSender counts calls per target and fails them on demand.
type scriptedSender struct {
	mu    sync.Mutex
	calls map[string]int
	texts []string

	// script returns the error for the nth call (1-based) to a target.
	script func(to types.JID, call int) error
}

func newScriptedSender(script func(to types.JID, call int) error) *scriptedSender {
	return &scriptedSender{calls: make(map[string]int), script: script}
}

func (s *scriptedSender) SendText(_ context.Context, to types.JID, text string, _ ...send.Option) (*send.Result, error) {
	s.mu.Lock()
	s.calls[to.String()]++
	call := s.calls[to.String()]
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	if s.script != nil {
		if err := s.script(to, call); err != nil {
			return nil, err
		}
	}
	return &send.Result{ID: "SENT"}, nil
}

func (s *scriptedSender) callsFor(to types.JID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[to.String()]
}

func (s *scriptedSender) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func quickMode() config.BroadcastMode {
	return config.BroadcastMode{
		Concurrency: 4,
		Retries:     3,
		Backoff:     time.Millisecond,
	}
}

func testEngineConfig() config.BroadcastConfig {
	cfg := config.Default().Broadcast
	cfg.Rate = 0 // no global pacing in tests
	cfg.ProgressEvery = 0
	cfg.ProgressInterval = 0
	return cfg
}

func targetList(n int) []types.JID {
	out := make([]types.JID, n)
	for i := range out {
		out[i] = types.NewJID(string(rune('a'+i))+"00", types.GroupServer)
	}
	return out
}

func rateLimitError(backoffSecs string) error {
	attrs := waBinary.Attrs{"code": "429", "text": "rate-overlimit"}
	if backoffSecs != "" {
		attrs["backoff"] = backoffSecs
	}
	return &whatsmeow.IQError{
		Code:      429,
		Text:      "rate-overlimit",
		ErrorNode: &waBinary.Node{Tag: "error", Attrs: attrs},
	}
}

func TestRunEmptyTargets(t *testing.T) {
	e := New(newScriptedSender(nil), testEngineConfig(), waLog.Noop)

	report := e.Run(context.Background(), nil, "oi", quickMode(), nil)
	assert.NotEmpty(t, report.RunID)
	assert.Zero(t, report.Total)
	assert.Zero(t, report.Sent)
}

func TestRunDeliversToAll(t *testing.T) {
	sender := newScriptedSender(nil)
	e := New(sender, testEngineConfig(), waLog.Noop)
	targets := targetList(10)

	report := e.Run(context.Background(), targets, "aviso geral", quickMode(), nil)

	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 10, report.Sent)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 10, sender.totalCalls())
	for _, target := range targets {
		assert.Equal(t, 1, sender.callsFor(target))
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	for _, text := range sender.texts {
		assert.Equal(t, "aviso geral", text)
	}
}

func TestRunCountsPermanentFailures(t *testing.T) {
	bad := targetList(12)[11]
	sender := newScriptedSender(func(to types.JID, _ int) error {
		if to == bad {
			return errors.New("recipient unavailable")
		}
		return nil
	})
	e := New(sender, testEngineConfig(), waLog.Noop)

	report := e.Run(context.Background(), targetList(12), "oi", quickMode(), nil)

	assert.Equal(t, 11, report.Sent)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.FailedSample, 1)
	assert.Equal(t, bad, report.FailedSample[0])
	// Permanent failures are not retried.
	assert.Equal(t, 1, sender.callsFor(bad))
}

func TestRunRetriesTransientFailures(t *testing.T) {
	flaky := targetList(1)[0]
	sender := newScriptedSender(func(to types.JID, call int) error {
		if to == flaky && call == 1 {
			return whatsmeow.ErrNotConnected
		}
		return nil
	})
	e := New(sender, testEngineConfig(), waLog.Noop)

	report := e.Run(context.Background(), targetList(1), "oi", quickMode(), nil)

	assert.Equal(t, 1, report.Sent)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 2, sender.callsFor(flaky))
}

func TestRunExhaustsRetries(t *testing.T) {
	sender := newScriptedSender(func(types.JID, int) error {
		return whatsmeow.ErrNotConnected
	})
	e := New(sender, testEngineConfig(), waLog.Noop)
	mode := quickMode()
	mode.Retries = 2

	report := e.Run(context.Background(), targetList(1), "oi", mode, nil)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, sender.totalCalls())
}

func TestRunPausesOnServerRateLimit(t *testing.T) {
	targets := targetList(2)
	first := targets[0]
	sender := newScriptedSender(func(to types.JID, call int) error {
		if to == first && call == 1 {
			return rateLimitError("1")
		}
		return nil
	})
	e := New(sender, testEngineConfig(), waLog.Noop)
	mode := quickMode()
	mode.Concurrency = 1

	start := time.Now()
	report := e.Run(context.Background(), targets, "oi", mode, nil)

	assert.Equal(t, 2, report.Sent)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 1, report.RateLimitHits)
	// Every later send waits out the shared pause the 429 armed.
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, 2, sender.callsFor(first))
}

func TestRunCancelledContextFailsRemaining(t *testing.T) {
	sender := newScriptedSender(nil)
	e := New(sender, testEngineConfig(), waLog.Noop)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := e.Run(ctx, targetList(5), "oi", quickMode(), nil)

	assert.Equal(t, 5, report.Failed)
	assert.Zero(t, report.Sent)
	assert.Zero(t, sender.totalCalls())
}

func TestRunProgressCadence(t *testing.T) {
	sender := newScriptedSender(nil)
	cfg := testEngineConfig()
	cfg.ProgressEvery = 2
	e := New(sender, cfg, waLog.Noop)
	mode := quickMode()
	mode.Concurrency = 1

	var mu sync.Mutex
	var notes []int
	progress := func(done, total int) {
		mu.Lock()
		notes = append(notes, done)
		mu.Unlock()
	}

	e.Run(context.Background(), targetList(4), "oi", mode, progress)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 4}, notes)
}

func TestRunProgressAlwaysFiresAtEnd(t *testing.T) {
	sender := newScriptedSender(nil)
	e := New(sender, testEngineConfig(), waLog.Noop)

	var mu sync.Mutex
	var notes []int
	e.Run(context.Background(), targetList(3), "oi", quickMode(), func(done, _ int) {
		mu.Lock()
		notes = append(notes, done)
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3}, notes)
}

func TestRateLimited(t *testing.T) {
	wait, ok := rateLimited(rateLimitError("30"))
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	wait, ok = rateLimited(rateLimitError(""))
	require.True(t, ok)
	assert.Equal(t, defaultRateLimitPause, wait)

	_, ok = rateLimited(&whatsmeow.IQError{Code: 500})
	assert.False(t, ok)

	_, ok = rateLimited(errors.New("other"))
	assert.False(t, ok)
}

func TestTransient(t *testing.T) {
	assert.True(t, transient(whatsmeow.ErrNotConnected))
	assert.True(t, transient(context.DeadlineExceeded))
	assert.True(t, transient(&whatsmeow.IQError{Code: 429}))
	assert.True(t, transient(&whatsmeow.IQError{Code: 503}))
	assert.True(t, transient(&net.DNSError{IsTimeout: true}))
	assert.False(t, transient(&whatsmeow.IQError{Code: 403}))
	assert.False(t, transient(errors.New("malformed")))
}

func TestFailedSampleBounded(t *testing.T) {
	sender := newScriptedSender(func(types.JID, int) error {
		return errors.New("nope")
	})
	e := New(sender, testEngineConfig(), waLog.Noop)
	mode := quickMode()
	mode.Retries = 1

	report := e.Run(context.Background(), targetList(15), "oi", mode, nil)

	assert.Equal(t, 15, report.Failed)
	assert.Len(t, report.FailedSample, failedSampleMax)
}
