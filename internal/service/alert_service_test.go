package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleet-alert-service/internal/domain/fleet"
	"fleet-alert-service/internal/engine"
	"fleet-alert-service/internal/repository"
	"fleet-alert-service/internal/upstream"
	"fleet-alert-service/internal/utils"
)

type fakeSource struct {
	name    fleet.Source
	records []map[string]any
	err     error
}

func (f *fakeSource) Name() fleet.Source { return f.name }

func (f *fakeSource) FetchVehicles(_ context.Context) ([]map[string]any, error) {
	return f.records, f.err
}

type storedAlert struct {
	alert           fleet.Alert
	normalizedPlate string
}

type fakeStore struct {
	mu         sync.Mutex
	alerts     []storedAlert
	failTypes  map[fleet.AlertType]error
	findResult []repository.AlertRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{failTypes: map[fleet.AlertType]error{}}
}

func (f *fakeStore) seed(plate string, alertType fleet.AlertType, ts time.Time) {
	f.alerts = append(f.alerts, storedAlert{
		alert:           fleet.Alert{Type: alertType, Timestamp: ts, Plate: plate},
		normalizedPlate: utils.NormalizePlate(plate),
	})
}

func (f *fakeStore) CountAlertsInWindow(_ context.Context, normalizedPlate string, alertType fleet.AlertType, from, to time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, s := range f.alerts {
		if s.normalizedPlate == normalizedPlate && s.alert.Type == alertType &&
			!s.alert.Timestamp.Before(from) && !s.alert.Timestamp.After(to) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CreateAlert(_ context.Context, alert *fleet.Alert, _ *fleet.Vehicle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTypes[alert.Type]; ok {
		return err
	}
	f.alerts = append(f.alerts, storedAlert{alert: *alert, normalizedPlate: utils.NormalizePlate(alert.Plate)})
	return nil
}

func (f *fakeStore) FindAlerts(_ context.Context, _ repository.AlertFilter) ([]repository.AlertRecord, error) {
	return f.findResult, nil
}

func (f *fakeStore) UpdateAlertStatus(_ context.Context, _ uuid.UUID, _ fleet.AlertStatus) error {
	return nil
}

func (f *fakeStore) DeleteOldAlerts(_ context.Context, _ int, _ ...fleet.AlertStatus) (int64, error) {
	return 0, nil
}

var testWindows = map[fleet.AlertType]time.Duration{
	fleet.AlertSpeedViolation: 15 * time.Minute,
	fleet.AlertPanicButton:    60 * time.Minute,
	fleet.AlertCollision:      24 * time.Hour,
}

func newTestService(store AlertStore, sources ...upstream.Source) *AlertService {
	classifier := engine.NewClassifier(80)
	gate := engine.NewDedupGate(testWindows, 15*time.Minute, store)
	validator := engine.NewCriticalValidator(24*time.Hour, store)
	return NewAlertService(store, sources, classifier, gate, validator, 5*time.Second, zerolog.Nop())
}

var cycleTime = time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)

func speedingRecord(plate string) map[string]any {
	return map[string]any{
		"PLACA":     plate,
		"VELOCIDAD": 95.0,
		"FECHA":     cycleTime.Format(time.RFC3339),
	}
}

func TestRunCycleSavesDetectedAlerts(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store,
		&fakeSource{name: fleet.SourceColtrack, records: []map[string]any{speedingRecord("ABC123")}},
		&fakeSource{name: fleet.SourceSatrack, records: []map[string]any{
			{"Placa": "XYZ999", "speed": 10.0, "event": "BOTON PANICO ACTIVADO", "timestamp": cycleTime.Format(time.RFC3339)},
		}},
	)

	summary := svc.RunCycle(context.Background(), cycleTime)

	if summary.VehiclesBySource["COLTRACK"] != 1 || summary.VehiclesBySource["SATRACK"] != 1 {
		t.Errorf("vehicles by source = %v", summary.VehiclesBySource)
	}
	if summary.AlertsDetected != 2 {
		t.Errorf("detected = %d, want 2", summary.AlertsDetected)
	}
	if summary.AlertsSaved != 2 {
		t.Errorf("saved = %d, want 2", summary.AlertsSaved)
	}
	if summary.Duplicates != 0 || summary.RejectedCritical != 0 || summary.Errors != 0 {
		t.Errorf("unexpected rejection counters: %+v", summary)
	}
	if len(store.alerts) != 2 {
		t.Errorf("store holds %d alerts, want 2", len(store.alerts))
	}

	if got := svc.LastSummary(); got != summary {
		t.Error("LastSummary should return the most recent cycle summary")
	}
}

func TestRunCycleSourceIsolation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store,
		&fakeSource{name: fleet.SourceColtrack, err: errors.New("connection refused")},
		&fakeSource{name: fleet.SourceSatrack, records: []map[string]any{speedingRecord("XYZ999")}},
	)

	summary := svc.RunCycle(context.Background(), cycleTime)

	if summary.SourceErrors["COLTRACK"] == "" {
		t.Error("failed source should be recorded in the summary")
	}
	if summary.VehiclesBySource["COLTRACK"] != 0 {
		t.Errorf("failed source vehicles = %d, want 0", summary.VehiclesBySource["COLTRACK"])
	}
	if summary.AlertsSaved != 1 {
		t.Errorf("saved = %d, want 1 from the healthy source", summary.AlertsSaved)
	}
}

func TestRunCycleDeduplicatesAcrossCycles(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{name: fleet.SourceColtrack, records: []map[string]any{speedingRecord("ABC123")}}
	svc := newTestService(store, source)

	first := svc.RunCycle(context.Background(), cycleTime)
	if first.AlertsSaved != 1 {
		t.Fatalf("first cycle saved = %d, want 1", first.AlertsSaved)
	}

	// same snapshot re-fetched five minutes later: still inside the window
	second := svc.RunCycle(context.Background(), cycleTime.Add(5*time.Minute))
	if second.AlertsSaved != 0 {
		t.Errorf("second cycle saved = %d, want 0", second.AlertsSaved)
	}
	if second.Duplicates != 1 {
		t.Errorf("second cycle duplicates = %d, want 1", second.Duplicates)
	}
}

func TestRunCycleRejectsCriticalSeparately(t *testing.T) {
	store := newFakeStore()
	// previous panic 2h ago: outside the 60m dedup window, inside the 24h
	// critical look-back
	store.seed("XYZ999", fleet.AlertPanicButton, cycleTime.Add(-2*time.Hour))

	svc := newTestService(store, &fakeSource{
		name: fleet.SourceColtrack,
		records: []map[string]any{{
			"PLACA":  "XYZ999",
			"EVENTO": "BOTON PANICO ACTIVADO",
			"FECHA":  cycleTime.Format(time.RFC3339),
		}},
	})

	summary := svc.RunCycle(context.Background(), cycleTime)

	if summary.RejectedCritical != 1 {
		t.Errorf("rejected_critical = %d, want 1", summary.RejectedCritical)
	}
	if summary.Duplicates != 0 {
		t.Errorf("duplicates = %d, want 0: critical rejections are tracked separately", summary.Duplicates)
	}
	if summary.AlertsSaved != 0 {
		t.Errorf("saved = %d, want 0", summary.AlertsSaved)
	}
}

func TestRunCyclePersistFailureIsolatedPerItem(t *testing.T) {
	store := newFakeStore()
	store.failTypes[fleet.AlertPanicButton] = errors.New("insert rejected")

	// one vehicle matching both rules: the panic insert fails, the speed
	// violation must still be saved
	svc := newTestService(store, &fakeSource{
		name: fleet.SourceColtrack,
		records: []map[string]any{{
			"PLACA":     "ABC123",
			"VELOCIDAD": 95.0,
			"EVENTO":    "BOTON PANICO ACTIVADO",
			"FECHA":     cycleTime.Format(time.RFC3339),
		}},
	})

	summary := svc.RunCycle(context.Background(), cycleTime)

	if summary.AlertsDetected != 2 {
		t.Errorf("detected = %d, want 2", summary.AlertsDetected)
	}
	if summary.Errors != 1 {
		t.Errorf("errors = %d, want 1", summary.Errors)
	}
	if summary.AlertsSaved != 1 {
		t.Errorf("saved = %d, want 1", summary.AlertsSaved)
	}
}

func TestRunCycleStorageDuplicateCountedAsDuplicate(t *testing.T) {
	store := newFakeStore()
	store.failTypes[fleet.AlertSpeedViolation] = repository.ErrDuplicateAlert

	svc := newTestService(store, &fakeSource{
		name:    fleet.SourceColtrack,
		records: []map[string]any{speedingRecord("ABC123")},
	})

	summary := svc.RunCycle(context.Background(), cycleTime)

	if summary.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1: unique-index hits degrade to duplicates", summary.Duplicates)
	}
	if summary.Errors != 0 {
		t.Errorf("errors = %d, want 0", summary.Errors)
	}
}

func TestRunCycleCollectsNormalizationWarnings(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSource{
		name: fleet.SourceColtrack,
		records: []map[string]any{
			{"VELOCIDAD": 95.0}, // no plate, no id: skipped
			speedingRecord("ABC123"),
		},
	})

	summary := svc.RunCycle(context.Background(), cycleTime)

	if len(summary.Warnings) == 0 {
		t.Error("unusable record should leave a warning in the summary")
	}
	if summary.AlertsSaved != 1 {
		t.Errorf("saved = %d, want 1 from the usable record", summary.AlertsSaved)
	}
}

func TestRunCycleQuietFleetProducesNoAlerts(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSource{
		name: fleet.SourceColtrack,
		records: []map[string]any{
			{"PLACA": "AAA111", "VELOCIDAD": 40.0, "EVENTO": "Reporte periódico", "FECHA": cycleTime.Format(time.RFC3339)},
			{"PLACA": "BBB222", "VELOCIDAD": 0.0, "FECHA": cycleTime.Format(time.RFC3339)},
		},
	})

	summary := svc.RunCycle(context.Background(), cycleTime)

	if summary.AlertsDetected != 0 || summary.AlertsSaved != 0 {
		t.Errorf("quiet fleet should yield no alerts, got %+v", summary)
	}
	if summary.Errors != 0 {
		t.Errorf("errors = %d, want 0: zero matches is the expected common case", summary.Errors)
	}
}
