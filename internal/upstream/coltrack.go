package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fleet-alert-service/internal/domain/fleet"
)

// ColtrackClient polls the Coltrack fleet endpoint. The vendor authenticates
// per request with credentials in the POST body and answers with a JSON array
// of loosely-shaped vehicle records.
type ColtrackClient struct {
	baseURL  string
	user     string
	password string
	client   *http.Client
}

func NewColtrackClient(baseURL, user, password string, timeout time.Duration) *ColtrackClient {
	return &ColtrackClient{
		baseURL:  baseURL,
		user:     user,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *ColtrackClient) Name() fleet.Source {
	return fleet.SourceColtrack
}

func (c *ColtrackClient) FetchVehicles(ctx context.Context) ([]map[string]any, error) {
	payload, err := json.Marshal(map[string]string{
		"usuario":  c.user,
		"password": c.password,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/vehiculos", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coltrack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coltrack returned status %d", resp.StatusCode)
	}

	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("coltrack response decode failed: %w", err)
	}
	return records, nil
}
