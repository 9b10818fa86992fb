package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"fleet-alert-service/internal/domain/fleet"
	"fleet-alert-service/internal/engine"
	"fleet-alert-service/internal/repository"
	"fleet-alert-service/internal/upstream"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// AlertStore is what the orchestrator needs from persistence: insert-one,
// window counts for the gates, filtered select, status update and bulk
// cleanup. Satisfied by repository.AlertRepository.
type AlertStore interface {
	engine.History
	CreateAlert(ctx context.Context, alert *fleet.Alert, rawVehicle *fleet.Vehicle) error
	FindAlerts(ctx context.Context, filter repository.AlertFilter) ([]repository.AlertRecord, error)
	UpdateAlertStatus(ctx context.Context, id uuid.UUID, status fleet.AlertStatus) error
	DeleteOldAlerts(ctx context.Context, days int, statuses ...fleet.AlertStatus) (int64, error)
}

type AlertService struct {
	store      AlertStore
	sources    []upstream.Source
	classifier *engine.Classifier
	gate       *engine.DedupGate
	validator  *engine.CriticalValidator

	fetchTimeout time.Duration
	log          zerolog.Logger

	// cycleMu serializes cycles so an HTTP trigger and the poller can never
	// interleave their read-then-write dedup checks.
	cycleMu sync.Mutex

	lastMu      sync.RWMutex
	lastSummary *fleet.RunSummary
}

func NewAlertService(
	store AlertStore,
	sources []upstream.Source,
	classifier *engine.Classifier,
	gate *engine.DedupGate,
	validator *engine.CriticalValidator,
	fetchTimeout time.Duration,
	log zerolog.Logger,
) *AlertService {
	return &AlertService{
		store:        store,
		sources:      sources,
		classifier:   classifier,
		gate:         gate,
		validator:    validator,
		fetchTimeout: fetchTimeout,
		log:          log,
	}
}

type fetchResult struct {
	source  fleet.Source
	records []map[string]any
	err     error
}

// RunCycle executes one complete poll cycle: fetch all sources concurrently,
// normalize, classify, dedupe, validate, persist. Every failure is captured
// into the summary counters; nothing propagates out past the cycle boundary.
func (s *AlertService) RunCycle(ctx context.Context, now time.Time) *fleet.RunSummary {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	summary := fleet.NewRunSummary(now)

	results := make(chan fetchResult, len(s.sources))
	var wg sync.WaitGroup
	for _, src := range s.sources {
		wg.Add(1)
		go func(src upstream.Source) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			defer cancel()
			records, err := src.FetchVehicles(fetchCtx)
			results <- fetchResult{source: src.Name(), records: records, err: err}
		}(src)
	}
	wg.Wait()
	close(results)

	for result := range results {
		if result.err != nil {
			// a failed source contributes zero vehicles; the cycle goes on
			s.log.Warn().
				Err(result.err).
				Str("source", string(result.source)).
				Msg("upstream fetch failed")
			summary.SourceErrors[string(result.source)] = result.err.Error()
			summary.VehiclesBySource[string(result.source)] = 0
			continue
		}
		summary.VehiclesBySource[string(result.source)] = len(result.records)
		for _, raw := range result.records {
			s.processRecord(ctx, raw, result.source, now, summary)
		}
	}

	summary.FinishedAt = time.Now()
	s.log.Info().
		Interface("vehicles_by_source", summary.VehiclesBySource).
		Int("detected", summary.AlertsDetected).
		Int("saved", summary.AlertsSaved).
		Int("duplicates", summary.Duplicates).
		Int("rejected_critical", summary.RejectedCritical).
		Int("errors", summary.Errors).
		Msg("poll cycle finished")

	s.lastMu.Lock()
	s.lastSummary = summary
	s.lastMu.Unlock()

	return summary
}

func (s *AlertService) processRecord(ctx context.Context, raw map[string]any, source fleet.Source, polledAt time.Time, summary *fleet.RunSummary) {
	vehicle, warnings, err := engine.Normalize(raw, source, polledAt)
	summary.Warnings = append(summary.Warnings, warnings...)
	if err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: skipped record: %v", source, err))
		return
	}

	candidates := s.classifier.Classify(vehicle)
	summary.AlertsDetected += len(candidates)

	for _, candidate := range candidates {
		s.processCandidate(ctx, candidate, &vehicle, summary)
	}
}

// processCandidate runs one candidate through the gates and persistence.
// Accepting or rejecting one candidate never affects its siblings from the
// same snapshot.
func (s *AlertService) processCandidate(ctx context.Context, candidate fleet.Alert, vehicle *fleet.Vehicle, summary *fleet.RunSummary) {
	accepted, err := s.gate.ShouldAccept(ctx, candidate)
	if err != nil {
		s.log.Error().Err(err).Str("plate", candidate.Plate).Str("type", string(candidate.Type)).
			Msg("dedup check failed")
		summary.Errors++
		return
	}
	if !accepted {
		summary.Duplicates++
		return
	}

	valid, err := s.validator.Validate(ctx, candidate)
	if err != nil {
		s.log.Error().Err(err).Str("plate", candidate.Plate).Str("type", string(candidate.Type)).
			Msg("critical validation failed")
		summary.Errors++
		return
	}
	if !valid {
		s.log.Warn().
			Str("plate", candidate.Plate).
			Str("type", string(candidate.Type)).
			Time("alert_time", candidate.Timestamp).
			Msg("critical alert suppressed by look-back window")
		summary.RejectedCritical++
		return
	}

	if err := s.store.CreateAlert(ctx, &candidate, vehicle); err != nil {
		if errors.Is(err, repository.ErrDuplicateAlert) {
			summary.Duplicates++
			return
		}
		s.log.Error().Err(err).Str("plate", candidate.Plate).Str("type", string(candidate.Type)).
			Msg("failed to persist alert")
		summary.Errors++
		return
	}

	s.log.Info().
		Str("alert_id", candidate.ID.String()).
		Str("plate", candidate.Plate).
		Str("type", string(candidate.Type)).
		Str("severity", string(candidate.Severity)).
		Msg("alert saved")
	summary.AlertsSaved++
}

func (s *AlertService) LastSummary() *fleet.RunSummary {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.lastSummary
}

type AlertInfo struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Status    string    `json:"status"`
	Plate     string    `json:"plate"`
	Driver    *string   `json:"driver,omitempty"`
	Location  *string   `json:"location,omitempty"`
	Contract  *string   `json:"contract,omitempty"`
	Speed     float64   `json:"speed"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Source    string    `json:"source"`
	Details   *string   `json:"details,omitempty"`
	AlertTime time.Time `json:"alert_time"`
	CreatedAt time.Time `json:"created_at"`
}

type ListQuery struct {
	Status   string
	Severity string
	Type     string
	Plate    string
	From     string
	To       string
	Limit    int
	Offset   int
}

func (s *AlertService) FindAlerts(ctx context.Context, q ListQuery) ([]AlertInfo, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}

	records, err := s.store.FindAlerts(ctx, *filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find alerts: %w", err)
	}

	result := make([]AlertInfo, 0, len(records))
	for _, record := range records {
		result = append(result, toAlertInfo(record))
	}
	return result, nil
}

func buildFilter(q ListQuery) (*repository.AlertFilter, error) {
	filter := &repository.AlertFilter{
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if q.Status != "" {
		status := fleet.AlertStatus(q.Status)
		if !fleet.ValidStatus(status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, q.Status)
		}
		filter.Status = &status
	}
	if q.Severity != "" {
		severity := fleet.Severity(q.Severity)
		filter.Severity = &severity
	}
	if q.Type != "" {
		alertType := fleet.AlertType(q.Type)
		filter.Type = &alertType
	}
	if q.Plate != "" {
		plate := q.Plate
		filter.Plate = &plate
	}
	if q.From != "" {
		t, err := time.Parse(time.RFC3339, q.From)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		filter.From = &t
	}
	if q.To != "" {
		t, err := time.Parse(time.RFC3339, q.To)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		filter.To = &t
	}
	return filter, nil
}

func toAlertInfo(record repository.AlertRecord) AlertInfo {
	return AlertInfo{
		ID:        record.ID.String(),
		Type:      record.Type,
		Severity:  record.Severity,
		Status:    record.Status,
		Plate:     record.Plate,
		Driver:    record.Driver,
		Location:  record.Location,
		Contract:  record.Contract,
		Speed:     record.Speed,
		Latitude:  record.Latitude,
		Longitude: record.Longitude,
		Source:    record.Source,
		Details:   record.Details,
		AlertTime: record.AlertTime,
		CreatedAt: record.CreatedAt,
	}
}

func (s *AlertService) UpdateAlertStatus(ctx context.Context, id string, status fleet.AlertStatus) error {
	alertID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: invalid alert id", ErrInvalidInput)
	}
	if !fleet.ValidStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	if err := s.store.UpdateAlertStatus(ctx, alertID, status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: alert %s", ErrNotFound, id)
		}
		s.log.Error().Err(err).Str("alert_id", id).Msg("failed to update alert status")
		return err
	}

	s.log.Info().Str("alert_id", id).Str("status", string(status)).Msg("alert status updated")
	return nil
}

// CleanupOldAlerts removes alerts older than the given number of days,
// optionally restricted to a set of statuses.
func (s *AlertService) CleanupOldAlerts(ctx context.Context, days int, statuses []fleet.AlertStatus) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", ErrInvalidInput)
	}
	for _, status := range statuses {
		if !fleet.ValidStatus(status) {
			return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
		}
	}

	deleted, err := s.store.DeleteOldAlerts(ctx, days, statuses...)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old alerts")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old alerts")
	}
	return deleted, nil
}
