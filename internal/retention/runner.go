package retention

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Runner triggers SweepAll on a fixed interval. It is the service's only
// background goroutine; Stop blocks until the in-flight sweep yields between
// batches, so shutdown never races the connection pool closing.
type Runner struct {
	manager  *Manager
	interval time.Duration
	log      zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewRunner builds a Runner sweeping every interval.
func NewRunner(manager *Manager, interval time.Duration, log zerolog.Logger) *Runner {
	return &Runner{
		manager:  manager,
		interval: interval,
		log:      log.With().Str("component", "retention-runner").Logger(),
		stop:     make(chan struct{}),
	}
}

// Start launches the periodic sweep loop.
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.loop()
	r.log.Info().Dur("interval", r.interval).Msg("retention runner started")
}

// Stop halts the loop and waits for any running sweep to finish.
func (r *Runner) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Runner) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				select {
				case <-r.stop:
					cancel()
				case <-done:
				}
			}()
			deleted, err := r.manager.SweepAll(ctx)
			close(done)
			cancel()
			if err != nil {
				r.log.Error().Err(err).Int64("deleted", deleted).Msg("scheduled sweep failed")
			} else if deleted > 0 {
				r.log.Info().Int64("deleted", deleted).Msg("scheduled sweep finished")
			}
		}
	}
}
