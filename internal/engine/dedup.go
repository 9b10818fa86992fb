package engine

import (
	"context"
	"time"

	"fleet-alert-service/internal/domain/fleet"
	"fleet-alert-service/internal/utils"
)

// History is the query surface over previously persisted alerts. Decisions
// must never depend on process-local memory: cycles can run as disconnected
// stateless invocations, so the persisted history is the only shared state.
type History interface {
	CountAlertsInWindow(ctx context.Context, normalizedPlate string, alertType fleet.AlertType, from, to time.Time) (int64, error)
}

// DedupGate rejects a candidate when an alert of the same (plate, type)
// already exists inside the type's trailing window. Sliding window over
// actual stored timestamps, not calendar buckets.
type DedupGate struct {
	windows       map[fleet.AlertType]time.Duration
	defaultWindow time.Duration
	history       History
}

func NewDedupGate(windows map[fleet.AlertType]time.Duration, defaultWindow time.Duration, history History) *DedupGate {
	return &DedupGate{
		windows:       windows,
		defaultWindow: defaultWindow,
		history:       history,
	}
}

func (g *DedupGate) WindowFor(alertType fleet.AlertType) time.Duration {
	if w, ok := g.windows[alertType]; ok {
		return w
	}
	return g.defaultWindow
}

func (g *DedupGate) ShouldAccept(ctx context.Context, candidate fleet.Alert) (bool, error) {
	window := g.WindowFor(candidate.Type)
	from := candidate.Timestamp.Add(-window)

	count, err := g.history.CountAlertsInWindow(ctx, utils.NormalizePlate(candidate.Plate), candidate.Type, from, candidate.Timestamp)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// CriticalValidator is the stricter second gate for panic-button and
// collision candidates. Its look-back is independent of ordinary
// deduplication and its rejections are accounted separately: a suppressed
// critical event may warrant manual review.
type CriticalValidator struct {
	lookback time.Duration
	history  History
}

func NewCriticalValidator(lookback time.Duration, history History) *CriticalValidator {
	return &CriticalValidator{lookback: lookback, history: history}
}

func (v *CriticalValidator) Applies(alertType fleet.AlertType) bool {
	return fleet.CriticalTypes[alertType]
}

func (v *CriticalValidator) Validate(ctx context.Context, candidate fleet.Alert) (bool, error) {
	if !v.Applies(candidate.Type) {
		return true, nil
	}
	from := candidate.Timestamp.Add(-v.lookback)

	count, err := v.history.CountAlertsInWindow(ctx, utils.NormalizePlate(candidate.Plate), candidate.Type, from, candidate.Timestamp)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}
