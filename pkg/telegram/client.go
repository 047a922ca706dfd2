// Package telegram sends text and document messages through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/enel-control/enel-cli/internal/resilience"
)

const defaultBaseURL = "https://api.telegram.org"

// Client delivers messages to Telegram chats. It satisfies collab.Messenger.
type Client interface {
	SendText(ctx context.Context, chatID, text string) error
	SendDocument(ctx context.Context, chatID, caption string, data []byte, filename string) error
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker installs a circuit breaker around every call.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewClient creates a Telegram Bot API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

func (c *httpClient) SendText(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return eris.Wrap(err, "telegram: marshal message")
	}
	return c.call(ctx, "sendMessage", func() (io.Reader, string, error) {
		return bytes.NewReader(body), "application/json", nil
	})
}

func (c *httpClient) SendDocument(ctx context.Context, chatID, caption string, data []byte, filename string) error {
	return c.call(ctx, "sendDocument", func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := w.WriteField("chat_id", chatID); err != nil {
			return nil, "", err
		}
		if caption != "" {
			if err := w.WriteField("caption", caption); err != nil {
				return nil, "", err
			}
		}
		part, err := w.CreateFormFile("document", filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	})
}

// call posts one Bot API method. body is rebuilt on every attempt.
func (c *httpClient) call(ctx context.Context, method string, body func() (io.Reader, string, error)) error {
	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("telegram", method)
	}
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		if c.breaker == nil {
			return c.post(ctx, method, body)
		}
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.post(ctx, method, body)
		})
	})
}

func (c *httpClient) post(ctx context.Context, method string, body func() (io.Reader, string, error)) error {
	r, contentType, err := body()
	if err != nil {
		return eris.Wrapf(err, "telegram: build %s body", method)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, r)
	if err != nil {
		return eris.Wrapf(err, "telegram: create %s request", method)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of the error.
		return resilience.NewTransientError(eris.Errorf("telegram: %s request failed", method), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "telegram: read %s response", method)
	}

	var out apiResponse
	if jsonErr := json.Unmarshal(raw, &out); jsonErr != nil && resp.StatusCode == http.StatusOK {
		return eris.Wrapf(jsonErr, "telegram: decode %s response", method)
	}
	if resp.StatusCode == http.StatusOK && out.OK {
		return nil
	}

	apiErr := eris.Errorf("telegram: %s unexpected status %d: %s", method, resp.StatusCode, out.Description)
	if out.Description == "" {
		apiErr = eris.Errorf("telegram: %s unexpected status %d: %s", method, resp.StatusCode, string(raw))
	}
	return resilience.ForStatus(apiErr, resp.StatusCode)
}
