// Package children fetches the guardian account's children from the
// platform REST API. Checkout only reads them; eligibility and
// ownership are the backend's concern.
package children

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"enroll-middleware/models"
)

type Client struct {
	baseURL string
	hc      *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: time.Second * 10},
	}
}

func (c *Client) GetMy(ctx context.Context) ([]models.Child, error) {
	url := fmt.Sprintf("%v/api/v1/children/mine", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build children request: %v", err.Error())
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch children: %v", err.Error())
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read children response: %v", err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %v fetching children: %v", resp.StatusCode, string(body))
	}
	var children []models.Child
	if err := json.Unmarshal(body, &children); err != nil {
		return nil, fmt.Errorf("failed to decode children response: %v", err.Error())
	}
	return children, nil
}
