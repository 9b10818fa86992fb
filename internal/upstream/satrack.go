package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fleet-alert-service/internal/domain/fleet"
)

// SatrackClient polls the Satrack tracking endpoint, which authenticates with
// a bearer token and wraps its records in a {"data": [...]} envelope.
type SatrackClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewSatrackClient(baseURL, token string, timeout time.Duration) *SatrackClient {
	return &SatrackClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *SatrackClient) Name() fleet.Source {
	return fleet.SourceSatrack
}

func (c *SatrackClient) FetchVehicles(ctx context.Context) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/units", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("satrack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("satrack returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("satrack response decode failed: %w", err)
	}
	return envelope.Data, nil
}
