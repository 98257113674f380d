package line

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const defaultTimeout = 10 * time.Second

// Client is a Messenger backed by the Messaging API SDK.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient creates a client using a long-lived channel access token.
func NewClient(apiBase, channelToken string) *Client {
	base := strings.TrimRight(apiBase, "/")
	if base == "" {
		base = DefaultAPIBase
	}
	return &Client{
		base:  base,
		token: channelToken,
		http:  &http.Client{Timeout: defaultTimeout},
	}
}

// APIError is returned for a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	err        error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("line api: status %d: %s", e.StatusCode, e.Message)
	}
	if e.err != nil {
		return fmt.Sprintf("line api: status %d: %v", e.StatusCode, e.err)
	}
	return fmt.Sprintf("line api: status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.err }

// PushText sends a text message to a user. Each push carries a fresh retry
// key so the API drops duplicates of the same request.
func (c *Client) PushText(ctx context.Context, to, text string) error {
	api, err := c.api(ctx)
	if err != nil {
		return err
	}
	res, _, err := api.PushMessageWithHttpInfo(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: []messaging_api.MessageInterface{&messaging_api.TextMessage{Text: text}},
	}, uuid.NewString())
	return apiError(res, err)
}

// ReplyText replies to an inbound event.
func (c *Client) ReplyText(ctx context.Context, replyToken, text string) error {
	api, err := c.api(ctx)
	if err != nil {
		return err
	}
	res, _, err := api.ReplyMessageWithHttpInfo(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   []messaging_api.MessageInterface{&messaging_api.TextMessage{Text: text}},
	})
	return apiError(res, err)
}

// api builds an SDK client whose requests are bound to ctx.
func (c *Client) api(ctx context.Context) (*messaging_api.MessagingApiAPI, error) {
	hc := &http.Client{
		Timeout:   c.http.Timeout,
		Transport: ctxTransport{ctx: ctx, next: c.http.Transport},
	}
	api, err := messaging_api.NewMessagingApiAPI(c.token,
		messaging_api.WithEndpoint(c.base),
		messaging_api.WithHTTPClient(hc),
	)
	if err != nil {
		return nil, fmt.Errorf("line api: %w", err)
	}
	return api, nil
}

// ctxTransport attaches a context to every outgoing request.
type ctxTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req.WithContext(t.ctx))
}

type errorResponse struct {
	Message string `json:"message"`
}

// apiError turns an SDK result into nil, an *APIError for a non-2xx
// response, or a transport error.
func apiError(res *http.Response, err error) error {
	if res == nil {
		if err != nil {
			return fmt.Errorf("line api: %w", err)
		}
		return nil
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 && err == nil {
		return nil
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return fmt.Errorf("line api: %w", err)
	}

	apiErr := &APIError{StatusCode: res.StatusCode, err: err}
	if res.Body != nil {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		res.Body.Close()
		var er errorResponse
		if len(data) > 0 && json.Unmarshal(data, &er) == nil {
			apiErr.Message = er.Message
		}
	}
	return apiErr
}
