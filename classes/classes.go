// Package classes implements the class lookup and capacity check
// against the enrollment platform's REST API. Capacity answers are
// cached in Redis for a short TTL; the cache is best-effort and any
// Redis problem falls through to the live call.
package classes

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"time"

	"enroll-middleware/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	baseURL  string
	hc       *http.Client
	cache    *redis.Client
	cacheTTL time.Duration
}

// New builds a class client. cache may be nil, which disables caching.
func New(baseURL string, cache *redis.Client, cacheTTL time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		hc:       &http.Client{Timeout: time.Second * 10},
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (c *Client) GetByID(ctx context.Context, id string) (*models.ClassOffering, error) {
	var class models.ClassOffering
	err := c.getJSON(ctx, fmt.Sprintf("%v/api/v1/classes/%v", c.baseURL, id), &class)
	if err != nil {
		return nil, fmt.Errorf("failed to get class %v: %v", id, err.Error())
	}
	return &class, nil
}

type capacityResponse struct {
	Available bool `json:"available"`
}

func (c *Client) CheckCapacity(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf("capacity:%v", id)
	if c.cache != nil {
		val, err := c.cache.Get(ctx, key).Result()
		if err == nil {
			return val == "1", nil
		}
		if err != redis.Nil {
			log.Printf("capacity cache read for class %v failed: %v", id, err.Error())
		}
	}

	var resp capacityResponse
	err := c.getJSON(ctx, fmt.Sprintf("%v/api/v1/classes/%v/capacity", c.baseURL, id), &resp)
	if err != nil {
		return false, fmt.Errorf("failed to check capacity for class %v: %v", id, err.Error())
	}

	if c.cache != nil {
		val := "0"
		if resp.Available {
			val = "1"
		}
		if err := c.cache.Set(ctx, key, val, c.cacheTTL).Err(); err != nil {
			log.Printf("capacity cache write for class %v failed: %v", id, err.Error())
		}
	}
	return resp.Available, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err.Error())
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %v", err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %v: %v", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %v", err.Error())
	}
	return nil
}

// NewRedisClient connects to Redis and verifies the connection. An
// empty addr returns nil, which callers treat as cache-disabled.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %v", err.Error())
	}
	return client, nil
}
