package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"fleet-alert-service/internal/domain/fleet"
	"fleet-alert-service/internal/utils"
)

var ErrDuplicateAlert = errors.New("alert already exists")

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (AlertRecord) TableName() string {
	return "fleet_alerts"
}

type AlertRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type            string    `gorm:"not null"`
	Severity        string    `gorm:"not null"`
	Plate           string    `gorm:"not null"`
	NormalizedPlate string    `gorm:"not null"`
	Driver          *string
	Location        *string
	Contract        *string
	Speed           float64
	Latitude        float64
	Longitude       float64
	Source          string `gorm:"not null"`
	Details         *string
	Status          string    `gorm:"not null"`
	AlertTime       time.Time `gorm:"not null"`
	RawVehicle      datatypes.JSON
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateAlert inserts one accepted candidate. A violation of the
// (normalized_plate, type, alert_time) unique index maps to ErrDuplicateAlert
// so overlapping cycles racing past the gate degrade to a counted duplicate
// instead of a double insert.
func (r *AlertRepository) CreateAlert(ctx context.Context, alert *fleet.Alert, rawVehicle *fleet.Vehicle) error {
	record := AlertRecord{
		ID:              alert.ID,
		Type:            string(alert.Type),
		Severity:        string(alert.Severity),
		Plate:           alert.Plate,
		NormalizedPlate: utils.NormalizePlate(alert.Plate),
		Speed:           alert.Speed,
		Latitude:        alert.Latitude,
		Longitude:       alert.Longitude,
		Source:          string(alert.Source),
		Status:          string(alert.Status),
		AlertTime:       alert.Timestamp,
	}
	if alert.Driver != "" {
		record.Driver = &alert.Driver
	}
	if alert.Location != "" {
		record.Location = &alert.Location
	}
	if alert.Contract != "" {
		record.Contract = &alert.Contract
	}
	if alert.Details != "" {
		record.Details = &alert.Details
	}
	if rawVehicle != nil {
		raw, err := json.Marshal(rawVehicle)
		if err != nil {
			return fmt.Errorf("marshal raw vehicle: %w", err)
		}
		record.RawVehicle = datatypes.JSON(raw)
	}

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAlert
		}
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// pgx error text fallback; gorm does not always translate the code
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key value")
}

// CountAlertsInWindow backs the dedup gate and critical validator: alerts of
// the same (plate, type) with alert_time inside [from, to].
func (r *AlertRepository) CountAlertsInWindow(ctx context.Context, normalizedPlate string, alertType fleet.AlertType, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&AlertRecord{}).
		Where("normalized_plate = ?", normalizedPlate).
		Where("type = ?", string(alertType)).
		Where("alert_time >= ? AND alert_time <= ?", from, to).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count alerts in window: %w", err)
	}
	return count, nil
}

type AlertFilter struct {
	Status   *fleet.AlertStatus
	Severity *fleet.Severity
	Type     *fleet.AlertType
	Plate    *string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

func (r *AlertRepository) FindAlerts(ctx context.Context, filter AlertFilter) ([]AlertRecord, error) {
	query := r.db.WithContext(ctx).Model(&AlertRecord{})

	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.Severity != nil {
		query = query.Where("severity = ?", string(*filter.Severity))
	}
	if filter.Type != nil {
		query = query.Where("type = ?", string(*filter.Type))
	}
	if filter.Plate != nil {
		query = query.Where("normalized_plate = ?", utils.NormalizePlate(*filter.Plate))
	}
	if filter.From != nil {
		query = query.Where("alert_time >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("alert_time <= ?", *filter.To)
	}

	query = query.Order("alert_time DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	query = query.Limit(limit)
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []AlertRecord
	err := query.Find(&records).Error
	return records, err
}

func (r *AlertRepository) UpdateAlertStatus(ctx context.Context, id uuid.UUID, status fleet.AlertStatus) error {
	result := r.db.WithContext(ctx).
		Model(&AlertRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("update alert status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteOldAlerts removes alerts older than the given number of days,
// optionally restricted to the given statuses.
func (r *AlertRepository) DeleteOldAlerts(ctx context.Context, days int, statuses ...fleet.AlertStatus) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	query := r.db.WithContext(ctx).Where("created_at < ?", cutoff)
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, s := range statuses {
			values = append(values, string(s))
		}
		query = query.Where("status IN ?", values)
	}

	result := query.Delete(&AlertRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
