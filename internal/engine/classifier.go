package engine

import (
	"fmt"
	"strings"

	"fleet-alert-service/internal/domain/fleet"
)

// severityByType is the single severity mapping; no other code path may
// assign a severity to an alert type.
var severityByType = map[fleet.AlertType]fleet.Severity{
	fleet.AlertSpeedViolation:    fleet.SeverityHigh,
	fleet.AlertPanicButton:       fleet.SeverityCritical,
	fleet.AlertHarshBraking:      fleet.SeverityMedium,
	fleet.AlertHarshAcceleration: fleet.SeverityMedium,
	fleet.AlertCollision:         fleet.SeverityCritical,
	fleet.AlertGeofenceEntry:     fleet.SeverityHigh,
	fleet.AlertGeofenceExit:      fleet.SeverityHigh,
	fleet.AlertBatteryDisconnect: fleet.SeverityCritical,
	fleet.AlertIdleExcessive:     fleet.SeverityLow,
	fleet.AlertGeneral:           fleet.SeverityMedium,
}

func SeverityFor(t fleet.AlertType) fleet.Severity {
	if s, ok := severityByType[t]; ok {
		return s
	}
	return fleet.SeverityMedium
}

// Event-text vocabularies. Spanish and English variants are mixed because the
// two vendors report in both, with inconsistent accenting.
var (
	panicKeywords     = []string{"panico", "pánico", "panic", "sos"}
	brakingKeywords   = []string{"frenada", "frenado brusco", "harsh braking", "hard braking"}
	accelKeywords     = []string{"aceleracion brusca", "aceleración brusca", "harsh acceleration", "hard acceleration"}
	collisionKeywords = []string{"colision", "colisión", "choque", "impacto", "collision", "crash", "impact", "accidente"}
	geofenceKeywords  = []string{"geocerca", "geofence", "geo-cerca", "zona restringida"}
	geofenceExitSub   = []string{"salida", "salio", "salió", "exit"}
	batteryKeywords   = []string{"bateria desconectada", "batería desconectada", "desconexion de bateria", "desconexión de batería", "battery disconnect", "corte de bateria"}
	idleKeywords      = []string{"ralenti", "ralentí", "idle", "motor detenido"}
	// vendor catch-alls, applied only when nothing more specific matched
	coltrackCatchAll = []string{"infraccion", "infracción", "infraction"}
	satrackCatchAll  = []string{"alerta", "emergencia", "emergency", "alert"}
)

type keywordRule struct {
	alertType fleet.AlertType
	keywords  []string
	details   func(v fleet.Vehicle) string
}

var keywordRules = []keywordRule{
	{
		alertType: fleet.AlertPanicButton,
		keywords:  panicKeywords,
		details: func(v fleet.Vehicle) string {
			return fmt.Sprintf("Botón de pánico reportado: %q", v.Event)
		},
	},
	{
		alertType: fleet.AlertHarshBraking,
		keywords:  brakingKeywords,
		details: func(v fleet.Vehicle) string {
			return fmt.Sprintf("Frenada brusca reportada: %q", v.Event)
		},
	},
	{
		alertType: fleet.AlertHarshAcceleration,
		keywords:  accelKeywords,
		details: func(v fleet.Vehicle) string {
			return fmt.Sprintf("Aceleración brusca reportada: %q", v.Event)
		},
	},
	{
		alertType: fleet.AlertCollision,
		keywords:  collisionKeywords,
		details: func(v fleet.Vehicle) string {
			return fmt.Sprintf("Posible colisión reportada: %q", v.Event)
		},
	},
	{
		alertType: fleet.AlertBatteryDisconnect,
		keywords:  batteryKeywords,
		details: func(v fleet.Vehicle) string {
			return fmt.Sprintf("Desconexión de batería reportada: %q", v.Event)
		},
	},
	{
		alertType: fleet.AlertIdleExcessive,
		keywords:  idleKeywords,
		details: func(v fleet.Vehicle) string {
			return fmt.Sprintf("Ralentí excesivo reportado: %q", v.Event)
		},
	},
}

type Classifier struct {
	speedThresholdKmh float64
}

func NewClassifier(speedThresholdKmh float64) *Classifier {
	return &Classifier{speedThresholdKmh: speedThresholdKmh}
}

// Classify maps one vehicle snapshot to zero or more alert candidates. Pure:
// every field of each candidate, including its id, is derived from the
// snapshot alone, so re-running on the same snapshot reproduces the same
// candidates.
func (c *Classifier) Classify(v fleet.Vehicle) []fleet.Alert {
	var candidates []fleet.Alert
	event := strings.ToLower(v.Event)

	if v.Speed >= c.speedThresholdKmh {
		details := fmt.Sprintf("Velocidad %.0f km/h excede el límite de %.0f km/h", v.Speed, c.speedThresholdKmh)
		candidates = append(candidates, c.candidate(v, fleet.AlertSpeedViolation, details))
	}

	for _, rule := range keywordRules {
		if _, ok := matchAny(event, rule.keywords); ok {
			candidates = append(candidates, c.candidate(v, rule.alertType, rule.details(v)))
		}
	}

	if matched, ok := matchAny(event, geofenceKeywords); ok {
		geofenceType := fleet.AlertGeofenceEntry
		if _, exit := matchAny(event, geofenceExitSub); exit {
			geofenceType = fleet.AlertGeofenceExit
		}
		details := fmt.Sprintf("Evento de geocerca (%s): %q", matched, v.Event)
		candidates = append(candidates, c.candidate(v, geofenceType, details))
	}

	// catch-alls: one generic vocabulary per vendor, suppressed whenever any
	// specific rule already classified this snapshot
	if len(candidates) == 0 {
		catchAll := coltrackCatchAll
		if v.Source == fleet.SourceSatrack {
			catchAll = satrackCatchAll
		}
		if matched, ok := matchAny(event, catchAll); ok {
			details := fmt.Sprintf("Evento genérico del proveedor (%s): %q", matched, v.Event)
			candidates = append(candidates, c.candidate(v, fleet.AlertGeneral, details))
		}
	}

	return candidates
}

func (c *Classifier) candidate(v fleet.Vehicle, alertType fleet.AlertType, details string) fleet.Alert {
	return fleet.Alert{
		ID:        fleet.AlertID(v.ID, alertType, v.LastUpdate),
		Type:      alertType,
		Severity:  SeverityFor(alertType),
		Timestamp: v.LastUpdate,
		Plate:     v.Plate,
		Driver:    v.Driver,
		Location:  v.Location,
		Contract:  v.Contract,
		Speed:     v.Speed,
		Latitude:  v.Latitude,
		Longitude: v.Longitude,
		Source:    v.Source,
		Details:   details,
		Status:    fleet.StatusPending,
	}
}

// matchAny reports the first keyword contained in the event text. Keywords of
// three characters or fewer ("sos") must match a whole word so they cannot
// fire inside unrelated words.
func matchAny(event string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if len(kw) <= 3 {
			if containsWord(event, kw) {
				return kw, true
			}
			continue
		}
		if strings.Contains(event, kw) {
			return kw, true
		}
	}
	return "", false
}

func containsWord(text, word string) bool {
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if field == word {
			return true
		}
	}
	return false
}
