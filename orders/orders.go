// Package orders provides the two order backends checkout can run
// against: a REST client for the enrollment platform's order service,
// and a Postgres-backed store for standalone deployments where this
// service owns the order records itself.
package orders

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

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: time.Second * 15},
	}
}

func (c *Client) Create(ctx context.Context, in checkout.CreateOrderInput) (*models.Order, error) {
	var order models.Order
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("%v/api/v1/orders", c.baseURL), in, &order)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %v", err.Error())
	}
	return &order, nil
}

type applyDiscountBody struct {
	Code string `json:"code"`
}

func (c *Client) ApplyDiscount(ctx context.Context, orderID, code string) (*models.Order, error) {
	var order models.Order
	url := fmt.Sprintf("%v/api/v1/orders/%v/discount", c.baseURL, orderID)
	err := c.doJSON(ctx, http.MethodPost, url, applyDiscountBody{Code: code}, &order)
	if err != nil {
		return nil, fmt.Errorf("failed to apply discount to order %v: %v", orderID, err.Error())
	}
	return &order, nil
}

func (c *Client) RemoveDiscount(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	url := fmt.Sprintf("%v/api/v1/orders/%v/discount", c.baseURL, orderID)
	err := c.doJSON(ctx, http.MethodDelete, url, nil, &order)
	if err != nil {
		return nil, fmt.Errorf("failed to remove discount from order %v: %v", orderID, err.Error())
	}
	return &order, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, in, out interface{}) error {
	var reqBody *bytes.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %v", err.Error())
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %v", err.Error())
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %v: %v", resp.StatusCode, string(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %v", err.Error())
		}
	}
	return nil
}
