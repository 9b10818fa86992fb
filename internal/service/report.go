package service

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Alertas"

var reportHeaders = []string{
	"Placa", "Tipo", "Severidad", "Estado", "Conductor", "Ubicación",
	"Contrato", "Velocidad (km/h)", "Fuente", "Detalle", "Fecha",
}

// BuildAlertReport renders the filtered alert listing as an Excel workbook.
// The caller owns the returned file and must Close it.
func (s *AlertService) BuildAlertReport(ctx context.Context, q ListQuery) (*excelize.File, error) {
	alerts, err := s.FindAlerts(ctx, q)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, fmt.Errorf("rename report sheet: %w", err)
	}

	for col, header := range reportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(reportSheet, cell, header); err != nil {
			return nil, err
		}
	}

	for row, alert := range alerts {
		values := []any{
			alert.Plate,
			alert.Type,
			alert.Severity,
			alert.Status,
			deref(alert.Driver),
			deref(alert.Location),
			deref(alert.Contract),
			alert.Speed,
			alert.Source,
			deref(alert.Details),
			alert.AlertTime.Format("2006-01-02 15:04:05"),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(reportSheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	_ = f.SetColWidth(reportSheet, "A", "K", 20)

	return f, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
