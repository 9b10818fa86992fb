package fleet

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Source string

const (
	SourceColtrack Source = "COLTRACK"
	SourceSatrack  Source = "SATRACK"
)

type VehicleStatus string

const (
	VehicleMoving VehicleStatus = "MOVING"
	VehicleIdle   VehicleStatus = "IDLE"
	VehicleOff    VehicleStatus = "OFF"
)

// Vehicle is one normalized telemetry snapshot. It lives for a single poll
// cycle and is never persisted as-is.
type Vehicle struct {
	ID         string
	Plate      string
	Driver     string
	Location   string
	Contract   string
	Speed      float64
	Latitude   float64
	Longitude  float64
	Event      string
	Status     VehicleStatus
	Source     Source
	LastUpdate time.Time
}

type AlertType string

const (
	AlertSpeedViolation    AlertType = "SPEED_VIOLATION"
	AlertPanicButton       AlertType = "PANIC_BUTTON"
	AlertHarshBraking      AlertType = "HARSH_BRAKING"
	AlertHarshAcceleration AlertType = "HARSH_ACCELERATION"
	AlertCollision         AlertType = "COLLISION"
	AlertGeofenceEntry     AlertType = "GEOFENCE_ENTRY"
	AlertGeofenceExit      AlertType = "GEOFENCE_EXIT"
	AlertBatteryDisconnect AlertType = "BATTERY_DISCONNECT"
	AlertIdleExcessive     AlertType = "IDLE_EXCESSIVE"
	AlertGeneral           AlertType = "GENERAL"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank orders severities for comparison; higher is more severe.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

type AlertStatus string

const (
	StatusPending    AlertStatus = "PENDING"
	StatusInProgress AlertStatus = "IN_PROGRESS"
	StatusResolved   AlertStatus = "RESOLVED"
)

func ValidStatus(s AlertStatus) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// Alert is one detection candidate; it becomes a persisted row only after the
// dedup gate and, for critical types, the critical validator accept it.
type Alert struct {
	ID        uuid.UUID
	Type      AlertType
	Severity  Severity
	Timestamp time.Time
	Plate     string
	Driver    string
	Location  string
	Contract  string
	Speed     float64
	Latitude  float64
	Longitude float64
	Source    Source
	Details   string
	Status    AlertStatus
}

// CriticalTypes get the additional 24h look-back in addition to ordinary
// deduplication.
var CriticalTypes = map[AlertType]bool{
	AlertPanicButton: true,
	AlertCollision:   true,
}

var alertIDNamespace = uuid.MustParse("7c9e4b20-3f1a-4d52-9d60-1b8a54c0e6f3")

// AlertID derives the alert identity from the vehicle, type and snapshot
// timestamp, so re-running detection on the same snapshot reproduces the same
// id.
func AlertID(vehicleID string, alertType AlertType, ts time.Time) uuid.UUID {
	key := fmt.Sprintf("%s|%s|%d", vehicleID, alertType, ts.UTC().Unix())
	return uuid.NewSHA1(alertIDNamespace, []byte(key))
}

// RunSummary is the observability record produced by each orchestrator cycle.
type RunSummary struct {
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	VehiclesBySource map[string]int    `json:"vehicles_by_source"`
	SourceErrors     map[string]string `json:"source_errors,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	AlertsDetected   int               `json:"alerts_detected"`
	AlertsSaved      int               `json:"alerts_saved"`
	Duplicates       int               `json:"duplicates"`
	RejectedCritical int               `json:"rejected_critical"`
	Errors           int               `json:"errors"`
}

func NewRunSummary(startedAt time.Time) *RunSummary {
	return &RunSummary{
		StartedAt:        startedAt,
		VehiclesBySource: make(map[string]int),
		SourceErrors:     make(map[string]string),
	}
}
