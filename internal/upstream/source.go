package upstream

import (
	"context"

	"fleet-alert-service/internal/domain/fleet"
)

// Source is one upstream GPS vendor. Implementations return raw records as
// decoded by the vendor's JSON envelope; field mapping into the canonical
// Vehicle shape happens in the engine normalizer.
type Source interface {
	Name() fleet.Source
	FetchVehicles(ctx context.Context) ([]map[string]any, error)
}
