package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fleet-alert-service/internal/service"
)

// Poller triggers a poll cycle on a fixed interval. If a cycle is still
// running when the next tick fires, the tick is skipped; the service
// additionally serializes cycles, so skipping only avoids queueing.
type Poller struct {
	alertService *service.AlertService
	interval     time.Duration
	log          zerolog.Logger
	running      atomic.Bool
}

func New(alertService *service.AlertService, interval time.Duration, log zerolog.Logger) *Poller {
	return &Poller{
		alertService: alertService,
		interval:     interval,
		log:          log,
	}
}

func (p *Poller) Run(ctx context.Context) {
	p.log.Info().Dur("interval", p.interval).Msg("poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// immediate first cycle so a fresh deploy does not wait a full interval
	p.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.runOnce(ctx)
		case <-ctx.Done():
			p.log.Info().Msg("poller stopped")
			return
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		p.log.Warn().Msg("previous cycle still running, skipping tick")
		return
	}
	defer p.running.Store(false)

	p.alertService.RunCycle(ctx, time.Now())
}
