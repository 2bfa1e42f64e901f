// Package enrollments records finalized enrollments with the platform
// REST API once payment has gone through.
package enrollments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"enroll-middleware/checkout"
	"enroll-middleware/models"
)

type Client struct {
	baseURL string
	hc      *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: time.Second * 15},
	}
}

func (c *Client) Create(ctx context.Context, in checkout.EnrollmentInput) (*models.Enrollment, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal enrollment request: %v", err.Error())
	}
	url := fmt.Sprintf("%v/api/v1/enrollments", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build enrollment request: %v", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create enrollment: %v", err.Error())
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read enrollment response: %v", err.Error())
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status %v creating enrollment: %v", resp.StatusCode, string(body))
	}
	var enrollment models.Enrollment
	if err := json.Unmarshal(body, &enrollment); err != nil {
		return nil, fmt.Errorf("failed to decode enrollment response: %v", err.Error())
	}
	return &enrollment, nil
}
