package engine

import (
	"strings"
	"testing"
	"time"

	"fleet-alert-service/internal/domain/fleet"
)

func testVehicle(plate string, speed float64, event string, source fleet.Source) fleet.Vehicle {
	return fleet.Vehicle{
		ID:         strings.ToLower(string(source)) + "-" + plate,
		Plate:      plate,
		Driver:     "Juan Pérez",
		Location:   "Av. Principal 123",
		Contract:   "Contrato Norte",
		Speed:      speed,
		Event:      event,
		Source:     source,
		LastUpdate: time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC),
	}
}

func TestClassifySpeedViolation(t *testing.T) {
	c := NewClassifier(80)

	candidates := c.Classify(testVehicle("ABC123", 95, "", fleet.SourceColtrack))
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	alert := candidates[0]
	if alert.Type != fleet.AlertSpeedViolation {
		t.Errorf("type = %s, want %s", alert.Type, fleet.AlertSpeedViolation)
	}
	if alert.Severity != fleet.SeverityHigh {
		t.Errorf("severity = %s, want %s", alert.Severity, fleet.SeverityHigh)
	}
	if !strings.Contains(alert.Details, "95") || !strings.Contains(alert.Details, "80") {
		t.Errorf("details %q should mention measured speed and threshold", alert.Details)
	}
	if alert.Status != fleet.StatusPending {
		t.Errorf("status = %s, want %s", alert.Status, fleet.StatusPending)
	}
}

func TestClassifyKeywordRules(t *testing.T) {
	tests := []struct {
		name     string
		event    string
		source   fleet.Source
		wantType fleet.AlertType
		wantSev  fleet.Severity
	}{
		{
			name:     "panic button spanish uppercase",
			event:    "BOTON PANICO ACTIVADO",
			source:   fleet.SourceColtrack,
			wantType: fleet.AlertPanicButton,
			wantSev:  fleet.SeverityCritical,
		},
		{
			name:     "panic sos english",
			event:    "SOS signal received",
			source:   fleet.SourceSatrack,
			wantType: fleet.AlertPanicButton,
			wantSev:  fleet.SeverityCritical,
		},
		{
			name:     "harsh braking",
			event:    "Frenada brusca detectada",
			source:   fleet.SourceColtrack,
			wantType: fleet.AlertHarshBraking,
			wantSev:  fleet.SeverityMedium,
		},
		{
			name:     "harsh acceleration",
			event:    "ACELERACION BRUSCA",
			source:   fleet.SourceSatrack,
			wantType: fleet.AlertHarshAcceleration,
			wantSev:  fleet.SeverityMedium,
		},
		{
			name:     "collision accented",
			event:    "Posible colisión frontal",
			source:   fleet.SourceColtrack,
			wantType: fleet.AlertCollision,
			wantSev:  fleet.SeverityCritical,
		},
		{
			name:     "collision english",
			event:    "crash detected",
			source:   fleet.SourceSatrack,
			wantType: fleet.AlertCollision,
			wantSev:  fleet.SeverityCritical,
		},
		{
			name:     "geofence entry",
			event:    "Entrada a geocerca Bodega Sur",
			source:   fleet.SourceColtrack,
			wantType: fleet.AlertGeofenceEntry,
			wantSev:  fleet.SeverityHigh,
		},
		{
			name:     "geofence exit",
			event:    "Salida de geocerca Bodega Sur",
			source:   fleet.SourceColtrack,
			wantType: fleet.AlertGeofenceExit,
			wantSev:  fleet.SeverityHigh,
		},
		{
			name:     "battery disconnect",
			event:    "BATERIA DESCONECTADA",
			source:   fleet.SourceSatrack,
			wantType: fleet.AlertBatteryDisconnect,
			wantSev:  fleet.SeverityCritical,
		},
		{
			name:     "idle excessive",
			event:    "Motor en ralentí prolongado",
			source:   fleet.SourceColtrack,
			wantType: fleet.AlertIdleExcessive,
			wantSev:  fleet.SeverityLow,
		},
		{
			name:     "coltrack catch-all",
			event:    "INFRACCION GENERAL",
			source:   fleet.SourceColtrack,
			wantType: fleet.AlertGeneral,
			wantSev:  fleet.SeverityMedium,
		},
		{
			name:     "satrack catch-all",
			event:    "ALERTA DE LA UNIDAD",
			source:   fleet.SourceSatrack,
			wantType: fleet.AlertGeneral,
			wantSev:  fleet.SeverityMedium,
		},
	}

	c := NewClassifier(80)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := c.Classify(testVehicle("XYZ999", 10, tt.event, tt.source))
			if len(candidates) != 1 {
				t.Fatalf("expected 1 candidate for %q, got %d", tt.event, len(candidates))
			}
			if candidates[0].Type != tt.wantType {
				t.Errorf("type = %s, want %s", candidates[0].Type, tt.wantType)
			}
			if candidates[0].Severity != tt.wantSev {
				t.Errorf("severity = %s, want %s", candidates[0].Severity, tt.wantSev)
			}
		})
	}
}

func TestClassifyNoMatch(t *testing.T) {
	c := NewClassifier(80)

	tests := []struct {
		name  string
		event string
		speed float64
	}{
		{name: "empty event under threshold", event: "", speed: 40},
		{name: "unrelated event text", event: "Reporte periódico", speed: 0},
		{name: "sos inside another word", event: "movimiento sospechoso descartado", speed: 0},
		{name: "coltrack ignores satrack catch-all vocabulary only when specific", event: "sin novedad", speed: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := c.Classify(testVehicle("AAA111", tt.speed, tt.event, fleet.SourceColtrack))
			if len(candidates) != 0 {
				t.Errorf("expected no candidates for %q, got %d (%v)", tt.event, len(candidates), candidates)
			}
		})
	}
}

func TestClassifyCatchAllSuppressedBySpecificRule(t *testing.T) {
	c := NewClassifier(80)

	// "alerta" is Satrack's generic keyword, but the panic rule already
	// classified this snapshot
	candidates := c.Classify(testVehicle("XYZ999", 0, "ALERTA: BOTON DE PANICO", fleet.SourceSatrack))
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Type != fleet.AlertPanicButton {
		t.Errorf("type = %s, want %s", candidates[0].Type, fleet.AlertPanicButton)
	}
}

func TestClassifyMultipleIndependentCandidates(t *testing.T) {
	c := NewClassifier(80)

	candidates := c.Classify(testVehicle("ABC123", 95, "BOTON PANICO ACTIVADO", fleet.SourceColtrack))
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	types := map[fleet.AlertType]bool{}
	for _, candidate := range candidates {
		types[candidate.Type] = true
	}
	if !types[fleet.AlertSpeedViolation] || !types[fleet.AlertPanicButton] {
		t.Errorf("expected speed violation and panic button, got %v", types)
	}
}

func TestClassifyIdempotentIdentity(t *testing.T) {
	c := NewClassifier(80)
	v := testVehicle("ABC123", 95, "BOTON PANICO", fleet.SourceColtrack)

	first := c.Classify(v)
	second := c.Classify(v)

	if len(first) != len(second) {
		t.Fatalf("candidate counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("candidate %d id differs across runs: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}

	// a different snapshot time must produce a different identity
	v2 := v
	v2.LastUpdate = v.LastUpdate.Add(time.Minute)
	third := c.Classify(v2)
	if third[0].ID == first[0].ID {
		t.Error("different snapshot time should change the alert id")
	}
}

func TestClassifyDoesNotMutateInput(t *testing.T) {
	c := NewClassifier(80)
	v := testVehicle("ABC123", 95, "BOTON PANICO", fleet.SourceColtrack)
	original := v

	c.Classify(v)

	if v != original {
		t.Error("Classify mutated the input vehicle")
	}
}

func TestSeverityIsPureFunctionOfType(t *testing.T) {
	allTypes := []fleet.AlertType{
		fleet.AlertSpeedViolation, fleet.AlertPanicButton, fleet.AlertHarshBraking,
		fleet.AlertHarshAcceleration, fleet.AlertCollision, fleet.AlertGeofenceEntry,
		fleet.AlertGeofenceExit, fleet.AlertBatteryDisconnect, fleet.AlertIdleExcessive,
		fleet.AlertGeneral,
	}
	for _, alertType := range allTypes {
		if SeverityFor(alertType) != SeverityFor(alertType) {
			t.Errorf("severity for %s is not stable", alertType)
		}
		if SeverityFor(alertType) == "" {
			t.Errorf("no severity mapped for %s", alertType)
		}
	}

	if SeverityFor("UNKNOWN_TYPE") != fleet.SeverityMedium {
		t.Error("unknown types should default to medium severity")
	}
}
