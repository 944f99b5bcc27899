package groups

import (
	"context"
	"sync"
	"time"
)

// refresher state lives on the Service so Start/Stop pair naturally.
type refresher struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StartRefresher re-lists joined groups every staleness window so cached
// metadata never outlives it. online gates the work while disconnected.
func (s *Service) StartRefresher(online func() bool) {
	if s.refresh.cancel != nil {
		s.log.Warnf("Refresher already running")
		return
	}

	s.refresh.ctx, s.refresh.cancel = context.WithCancel(context.Background())
	s.refresh.wg.Add(1)
	go s.runPeriodic(s.staleness, online)
}

// StopRefresher stops the periodic refresh and waits for it to exit.
func (s *Service) StopRefresher() {
	if s.refresh.cancel != nil {
		s.refresh.cancel()
		s.refresh.wg.Wait()
		s.refresh.cancel = nil
	}
}

func (s *Service) runPeriodic(interval time.Duration, online func() bool) {
	defer s.refresh.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.refresh.ctx.Done():
			return
		case <-ticker.C:
			if online != nil && !online() {
				continue
			}
			if _, err := s.SyncJoined(s.refresh.ctx); err != nil {
				s.log.Warnf("Periodic group refresh failed: %v", err)
			}
		}
	}
}
