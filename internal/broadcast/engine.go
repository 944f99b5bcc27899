// Package broadcast fans a single message out to many chats without
// tripping the provider's rate limits. Each run works through its target
// list with a bounded worker pool, per-send jitter, a global send-rate
// cap, and a shared pause whenever the server answers 429.
package broadcast

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"zelador/internal/infra/config"
	"zelador/internal/metrics"
	"zelador/internal/send"
)

const (
	// failedSampleMax caps how many failed targets a report names.
	failedSampleMax = 10

	// defaultRateLimitPause is used when a 429 carries no backoff hint.
	defaultRateLimitPause = time.Minute
)

// Sender is the outbound slice the engine drives.
type Sender interface {
	SendText(ctx context.Context, to types.JID, text string, opts ...send.Option) (*send.Result, error)
}

// Report summarizes one finished run.
type Report struct {
	RunID         string
	Total         int
	Sent          int
	Failed        int
	FailedSample  []types.JID
	RateLimitHits int
	Elapsed       time.Duration
}

// Engine executes broadcast runs. Safe for concurrent use; the courtesy
// pause after a 429 is shared across runs.
type Engine struct {
	send    Sender
	cfg     config.BroadcastConfig
	limiter *rate.Limiter
	log     waLog.Logger

	// pausedUntil holds the unix-nano deadline every worker waits for
	// after the server asks us to back off.
	pausedUntil atomic.Int64
}

// New creates the engine. A non-positive rate disables the global cap.
func New(sender Sender, cfg config.BroadcastConfig, log waLog.Logger) *Engine {
	limit := rate.Limit(cfg.Rate)
	if cfg.Rate <= 0 {
		limit = rate.Inf
	}
	return &Engine{
		send:    sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		log:     log.Sub("Broadcast"),
	}
}

// Run delivers text to every target and blocks until the run settles.
// Progress, when non-nil, is called with the running tally at the cadence
// configured on the engine and always once at the end. Cancelling ctx
// stops new sends; targets never attempted count as failed.
func (e *Engine) Run(ctx context.Context, targets []types.JID, text string, mode config.BroadcastMode, progress func(done, total int)) *Report {
	report := &Report{RunID: uuid.NewString(), Total: len(targets)}
	if report.Total == 0 {
		return report
	}
	start := time.Now()
	e.log.Infof("Broadcast %s starting: %d targets, concurrency %d", report.RunID, report.Total, mode.Concurrency)

	var (
		mu       sync.Mutex
		done     int
		lastNote = start
	)
	record := func(target types.JID, err error) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if err != nil {
			report.Failed++
			if len(report.FailedSample) < failedSampleMax {
				report.FailedSample = append(report.FailedSample, target)
			}
			metrics.BroadcastSendsTotal.WithLabelValues("failed").Inc()
			e.log.Warnf("Broadcast %s: send to %s failed: %v", report.RunID, target, err)
		} else {
			report.Sent++
			metrics.BroadcastSendsTotal.WithLabelValues("sent").Inc()
		}
		if progress == nil {
			return
		}
		if done == report.Total ||
			(e.cfg.ProgressEvery > 0 && done%e.cfg.ProgressEvery == 0) ||
			(e.cfg.ProgressInterval > 0 && time.Since(lastNote) >= e.cfg.ProgressInterval) {
			lastNote = time.Now()
			progress(done, report.Total)
		}
	}
	onRateLimit := func() {
		mu.Lock()
		report.RateLimitHits++
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(max(mode.Concurrency, 1))
	for _, target := range targets {
		if ctx.Err() != nil {
			record(target, ctx.Err())
			continue
		}
		g.Go(func() error {
			record(target, e.deliver(ctx, target, text, mode, onRateLimit))
			return nil
		})
	}
	g.Wait()

	report.Elapsed = time.Since(start)
	e.log.Infof("Broadcast %s finished in %s: %d sent, %d failed",
		report.RunID, report.Elapsed.Round(time.Millisecond), report.Sent, report.Failed)
	return report
}

// deliver sends to one target, retrying transient faults. A 429 arms the
// shared pause and stays retryable so the item survives the cooldown.
func (e *Engine) deliver(ctx context.Context, to types.JID, text string, mode config.BroadcastMode, onRateLimit func()) error {
	operation := func() (struct{}, error) {
		if err := e.waitTurn(ctx, mode); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		_, err := e.send.SendText(ctx, to, text)
		if err == nil {
			return struct{}{}, nil
		}
		if wait, ok := rateLimited(err); ok {
			e.pause(wait)
			onRateLimit()
			metrics.RateLimitHitsTotal.Inc()
			e.log.Warnf("Server rate limit hit, pausing sends for %s", wait)
			return struct{}{}, err
		}
		if !transient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = mode.Backoff
	bo.MaxInterval = 2 * defaultRateLimitPause

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(max(mode.Retries, 1))))
	return err
}

// waitTurn blocks until this worker may send: any shared pause has
// lapsed, the per-send jitter elapsed, and the global cap admits us.
func (e *Engine) waitTurn(ctx context.Context, mode config.BroadcastMode) error {
	if err := e.waitPause(ctx); err != nil {
		return err
	}
	if err := sleepJitter(ctx, mode.JitterMin, mode.JitterMax); err != nil {
		return err
	}
	return e.limiter.Wait(ctx)
}

func (e *Engine) waitPause(ctx context.Context) error {
	for {
		until := e.pausedUntil.Load()
		now := time.Now().UnixNano()
		if until <= now {
			return nil
		}
		timer := time.NewTimer(time.Duration(until - now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// pause extends the shared deadline, never shortening one already set.
func (e *Engine) pause(wait time.Duration) {
	deadline := time.Now().Add(wait).UnixNano()
	for {
		cur := e.pausedUntil.Load()
		if cur >= deadline || e.pausedUntil.CompareAndSwap(cur, deadline) {
			return
		}
	}
}

func sleepJitter(ctx context.Context, min, max time.Duration) error {
	d := min
	if span := max - min; span > 0 {
		d += time.Duration(rand.Int64N(int64(span)))
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// rateLimited reports whether err is the server throttling us, and for
// how long it asked us to hold off.
func rateLimited(err error) (time.Duration, bool) {
	var iqErr *whatsmeow.IQError
	if !errors.As(err, &iqErr) || iqErr.Code != 429 {
		return 0, false
	}
	secs := 0
	if iqErr.ErrorNode != nil {
		secs = iqErr.ErrorNode.AttrGetter().OptionalInt("backoff")
	}
	if secs == 0 && iqErr.RawNode != nil {
		secs = iqErr.RawNode.AttrGetter().OptionalInt("backoff")
	}
	if secs <= 0 {
		return defaultRateLimitPause, true
	}
	return time.Duration(secs) * time.Second, true
}

func transient(err error) bool {
	if errors.Is(err, whatsmeow.ErrNotConnected) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var iqErr *whatsmeow.IQError
	if errors.As(err, &iqErr) {
		return iqErr.Code == 429 || iqErr.Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
