// Package client is a Go SDK for the gateway's HTTP API.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
)

const keyHeader = "key"

const (
	StatusPending   = 0
	StatusSuccess   = 1
	StatusExpired   = 2
	StatusCancelled = 3
)

var (
	ErrInvalidKey = errors.New("invalid merchant key")
	ErrNotFound   = errors.New("request not found")
)

const alreadySettled = "Request Already Settled"

// APIError is any non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrInvalidKey:
		return e.Message == "Invalid Merchant Key"
	case ErrNotFound:
		return e.Message == "Request Not Found"
	}
	return false
}

type CreateKeyArgs struct {
	Name     string  `json:"name"`
	VPA      string  `json:"vpa"`
	Currency string  `json:"currency,omitempty"`
	Webhook  *string `json:"webhook,omitempty"`
}

type CreatedRequest struct {
	ID   string `json:"id"`
	Note string `json:"note"`
	URI  string `json:"uri"`
}

type Request struct {
	ID        string    `json:"id"`
	Amount    *string   `json:"amount"`
	Status    int       `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	URI       string    `json:"uri"`
}

type Summary struct {
	ID        string    `json:"id"`
	Amount    *string   `json:"amount"`
	Status    int       `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ack is the answer to cancel, expire and confirm calls.
type Ack struct {
	// AlreadySettled is set when the request had left pending before the call.
	AlreadySettled bool
}

// Update is one status emission of an event stream. Code is -1 when the
// request does not exist and -3 when the server failed to read it.
type Update struct {
	Status string `json:"status"`
	Code   int    `json:"code"`
}

type Client struct {
	rc     *resty.Client
	stream *resty.Client
	key    string
}

func New(baseURL, key string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	// Streams stay open while a request is pending, so they get no timeout.
	stream := resty.New().SetBaseURL(baseURL)

	return &Client{rc: rc, stream: stream, key: key}
}

// SetKey switches the merchant key used by subsequent calls.
func (c *Client) SetKey(key string) {
	c.key = key
}

func (c *Client) request(ctx context.Context) *resty.Request {
	r := c.rc.R().SetContext(ctx)
	if c.key != "" {
		r.SetHeader(keyHeader, c.key)
	}
	return r
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
	}
	return nil
}

func (c *Client) CreateKey(ctx context.Context, args CreateKeyArgs) (string, error) {
	var out struct {
		Key string `json:"key"`
	}
	resp, err := c.request(ctx).SetBody(args).SetResult(&out).Post("/api/createKey")
	if err := check(resp, err); err != nil {
		return "", err
	}
	return out.Key, nil
}

func (c *Client) SetWebhook(ctx context.Context, webhook string) error {
	resp, err := c.request(ctx).SetBody(map[string]string{"webhook": webhook}).Post("/api/setWebhook")
	return check(resp, err)
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	resp, err := c.request(ctx).Post("/api/deleteWebhook")
	return check(resp, err)
}

// CreateRequest asks for amount, or lets the payer choose when amount is empty.
func (c *Client) CreateRequest(ctx context.Context, amount string) (*CreatedRequest, error) {
	body := map[string]string{}
	if amount != "" {
		body["amount"] = amount
	}

	var out CreatedRequest
	resp, err := c.request(ctx).SetBody(body).SetResult(&out).Post("/api/createRequest")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRequest(ctx context.Context, id string) (*Request, error) {
	var out Request
	resp, err := c.request(ctx).SetQueryParam("id", id).SetResult(&out).Get("/api/getRequest")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRequests(ctx context.Context, page int) ([]Summary, error) {
	if page < 1 {
		page = 1
	}
	var out []Summary
	resp, err := c.request(ctx).SetQueryParam("page", fmt.Sprint(page)).SetResult(&out).Get("/api/allRequests")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelRequest(ctx context.Context, id string) (Ack, error) {
	return c.ack(c.request(ctx).SetBody(map[string]string{"id": id}).Post("/api/cancelRequest"))
}

func (c *Client) ExpireRequest(ctx context.Context, id string) (Ack, error) {
	return c.ack(c.request(ctx).SetBody(map[string]string{"id": id}).Post("/api/expireRequest"))
}

// SendUpdate reports that note was paid. amount may be empty when unknown.
func (c *Client) SendUpdate(ctx context.Context, note, amount string) (Ack, error) {
	body := map[string]string{"note": note}
	if amount != "" {
		body["amount"] = amount
	}
	return c.ack(c.request(ctx).SetBody(body).Post("/api/sendUpdate"))
}

func (c *Client) ack(resp *resty.Response, err error) (Ack, error) {
	if err := check(resp, err); err != nil {
		return Ack{}, err
	}
	return Ack{AlreadySettled: strings.TrimSpace(resp.String()) == alreadySettled}, nil
}

// Watch follows the event stream of request id, calling fn for every update,
// until the server closes the stream or ctx ends.
func (c *Client) Watch(ctx context.Context, id string, fn func(Update)) error {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		Get("/event/" + id)
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode(), Message: resp.Status()}
	}

	scanner := bufio.NewScanner(body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event == "update" && data != "" {
				var u Update
				if err := sonic.UnmarshalString(data, &u); err != nil {
					return fmt.Errorf("bad update %q: %w", data, err)
				}
				fn(u)
			}
			event, data = "", ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
