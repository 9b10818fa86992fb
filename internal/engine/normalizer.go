package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fleet-alert-service/internal/domain/fleet"
)

var ErrUnusableRecord = errors.New("record has neither plate nor device id")

const unassignedContract = "No asignado"

// Candidate key spellings per logical field. Both vendors have accumulated
// mixed-case Spanish/English names for the same concept over the years, so
// every field is probed in order until one key yields a value.
var (
	plateKeys    = []string{"PLACA", "Placa", "placa", "Matricula", "matricula", "plate", "Plate", "licensePlate"}
	driverKeys   = []string{"CONDUCTOR", "Conductor", "conductor", "NombreConductor", "driver", "Driver", "driverName"}
	locationKeys = []string{"UBICACION", "Ubicacion", "ubicacion", "DIRECCION", "Direccion", "direccion", "location", "address", "Address"}
	contractKeys = []string{"CONTRATO", "Contrato", "contrato", "Cliente", "cliente", "contract", "Contract"}
	speedKeys    = []string{"VELOCIDAD", "Velocidad", "velocidad", "speed", "Speed", "Vel", "KPH", "kph"}
	latKeys      = []string{"LATITUD", "Latitud", "latitud", "lat", "Lat", "latitude", "Latitude"}
	lonKeys      = []string{"LONGITUD", "Longitud", "longitud", "lon", "lng", "Lng", "longitude", "Longitude"}
	eventKeys    = []string{"EVENTO", "Evento", "evento", "event", "Event", "ALERTA", "Alerta", "Mensaje", "mensaje", "statusText"}
	idKeys       = []string{"ID", "Id", "id", "IMEI", "imei", "DeviceId", "deviceId", "UNIDAD", "Unidad", "unitId"}
	dateKeys     = []string{"FECHA", "Fecha", "fecha", "FechaHora", "fechaHora", "UltimoReporte", "lastUpdate", "timestamp", "date", "dateTime"}
	ignitionKeys = []string{"IGNICION", "Ignicion", "ignicion", "Encendido", "encendido", "ignition", "Ignition"}
)

var ignitionOnKeywords = []string{"encendido", "ignicion on", "ignition on", "motor encendido", "engine on"}

// Normalize maps one raw vendor record into the canonical Vehicle shape.
// Missing fields fall back to safe defaults and are reported as warnings;
// polledAt substitutes a missing vendor timestamp so the function never reads
// the wall clock.
func Normalize(raw map[string]any, source fleet.Source, polledAt time.Time) (fleet.Vehicle, []string, error) {
	var warnings []string

	plate := stringField(raw, plateKeys)
	deviceID := stringField(raw, idKeys)
	if plate == "" && deviceID == "" {
		return fleet.Vehicle{}, warnings, ErrUnusableRecord
	}
	if plate == "" {
		warnings = append(warnings, fmt.Sprintf("%s: record %s has no plate", source, deviceID))
		plate = deviceID
	}
	if deviceID == "" {
		deviceID = plate
	}

	speed, ok := floatField(raw, speedKeys)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("%s: record %s has no speed, defaulting to 0", source, plate))
	}
	if speed < 0 {
		speed = 0
	}

	lat, _ := floatField(raw, latKeys)
	lon, _ := floatField(raw, lonKeys)

	contract := stringField(raw, contractKeys)
	if contract == "" {
		contract = unassignedContract
	}

	lastUpdate := timeField(raw, dateKeys)
	if lastUpdate.IsZero() {
		warnings = append(warnings, fmt.Sprintf("%s: record %s has no usable timestamp, using poll time", source, plate))
		lastUpdate = polledAt
	}

	event := stringField(raw, eventKeys)

	v := fleet.Vehicle{
		ID:         fmt.Sprintf("%s-%s", strings.ToLower(string(source)), deviceID),
		Plate:      plate,
		Driver:     stringField(raw, driverKeys),
		Location:   stringField(raw, locationKeys),
		Contract:   contract,
		Speed:      speed,
		Latitude:   lat,
		Longitude:  lon,
		Event:      event,
		Source:     source,
		LastUpdate: lastUpdate,
	}
	v.Status = deriveStatus(speed, event, boolField(raw, ignitionKeys))

	return v, warnings, nil
}

// deriveStatus applies the priority rule: movement wins, then ignition
// keywords in the event text, then the vendor-supplied ignition flag.
func deriveStatus(speed float64, event string, ignitionOn bool) fleet.VehicleStatus {
	if speed > 0 {
		return fleet.VehicleMoving
	}
	lower := strings.ToLower(event)
	for _, kw := range ignitionOnKeywords {
		if strings.Contains(lower, kw) {
			return fleet.VehicleIdle
		}
	}
	if ignitionOn {
		return fleet.VehicleIdle
	}
	return fleet.VehicleOff
}

func stringField(raw map[string]any, keys []string) string {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func floatField(raw map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			return val, true
		case int:
			return float64(val), true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func boolField(raw map[string]any, keys []string) bool {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case bool:
			return val
		case string:
			lower := strings.ToLower(strings.TrimSpace(val))
			if lower == "true" || lower == "1" || lower == "on" || lower == "si" || lower == "sí" {
				return true
			}
		case float64:
			return val != 0
		}
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
}

func timeField(raw map[string]any, keys []string) time.Time {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}
