package r2r

import (
	"context"
	"net/http"
)

// Health checks the service with the short health timeout.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	const op = "system.health"

	resp, err := c.send(ctx, c.healthClient, op, http.MethodGet, "/v3/health", nil, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out HealthStatus
	if _, err := decodeEnvelope(op, resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
