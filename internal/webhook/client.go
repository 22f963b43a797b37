package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sony/gobreaker"

	"upi-gateway/domain"
)

var ErrCircuitOpen = errors.New("webhook endpoint circuit is open")

// Client delivers a single webhook event. It never retries.
type Client interface {
	Send(ctx context.Context, endpoint string, ev domain.WebhookEvent) error
}

type client struct {
	httpClient *http.Client
	settings   gobreaker.Settings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient returns a Client with one circuit breaker per destination host,
// so a merchant whose endpoint is down does not slow down everyone else.
func NewClient(timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &client{
		httpClient: &http.Client{Timeout: timeout},
		settings: gobreaker.Settings{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Printf("[WARN] Circuit Breaker '%s' changed state from '%s' to '%s'", name, from, to)
			},
		},
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *client) breaker(endpoint string) *gobreaker.CircuitBreaker {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Host
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[host]
	if !ok {
		s := c.settings
		s.Name = "webhook:" + host
		cb = gobreaker.NewCircuitBreaker(s)
		c.breakers[host] = cb
	}
	return cb
}

func (c *client) Send(ctx context.Context, endpoint string, ev domain.WebhookEvent) error {
	body, err := sonic.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not encode webhook: %w", err)
	}

	_, err = c.breaker(endpoint).Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("could not build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("webhook request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("webhook endpoint returned %d: %s", resp.StatusCode, respBody)
		}
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}
