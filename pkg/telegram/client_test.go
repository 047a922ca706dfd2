package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enel-control/enel-cli/internal/resilience"
)

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})
}

func TestSendText(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   string
		wantCalls int32
	}{
		{
			name:      "success",
			status:    http.StatusOK,
			body:      `{"ok": true, "result": {"message_id": 1}}`,
			wantCalls: 1,
		},
		{
			name:      "chat_not_found",
			status:    http.StatusBadRequest,
			body:      `{"ok": false, "error_code": 400, "description": "Bad Request: chat not found"}`,
			wantErr:   "chat not found",
			wantCalls: 1,
		},
		{
			name:      "rate_limit_retried",
			status:    http.StatusTooManyRequests,
			body:      `{"ok": false, "error_code": 429, "description": "Too Many Requests", "parameters": {"retry_after": 1}}`,
			wantErr:   "unexpected status 429",
			wantCalls: 3,
		},
		{
			name:      "server_error_retried",
			status:    http.StatusBadGateway,
			body:      `bad gateway`,
			wantErr:   "unexpected status 502: bad gateway",
			wantCalls: 3,
		},
		{
			name:      "malformed_response",
			status:    http.StatusOK,
			body:      `{invalid`,
			wantErr:   "decode sendMessage response",
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req sendMessageRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "111", req.ChatID)
				assert.Equal(t, "olá", req.Text)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-token", WithBaseURL(srv.URL), fastRetry())
			err := client.SendText(context.Background(), "111", "olá")

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestSendDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendDocument", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "222", r.FormValue("chat_id"))
		assert.Equal(t, "fatura", r.FormValue("caption"))

		f, hdr, err := r.FormFile("document")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close() //nolint:errcheck
		assert.Equal(t, "UC-12345678-2025-02-ENEL.pdf", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "%PDF-1.4", string(data))

		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	err := client.SendDocument(context.Background(), "222", "fatura", []byte("%PDF-1.4"), "UC-12345678-2025-02-ENEL.pdf")
	require.NoError(t, err)
}

func TestSendDocument_RebuildsBodyOnRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		f, _, err := r.FormFile("document")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(f)
		_ = f.Close()
		assert.Equal(t, "payload", string(data))

		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"ok": false, "description": "busy"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL), fastRetry())
	require.NoError(t, client.SendDocument(context.Background(), "1", "", []byte("payload"), "a.pdf"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker("telegram", 2, time.Minute)
	client := NewClient("test-token",
		WithBaseURL(srv.URL),
		WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
		WithBreaker(breaker),
	)

	for range 2 {
		assert.Error(t, client.SendText(context.Background(), "1", "x"))
	}
	err := client.SendText(context.Background(), "1", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := NewClient("secret-token", WithBaseURL(srv.URL), WithRetry(resilience.RetryConfig{MaxAttempts: 1}))
	err := client.SendText(context.Background(), "1", "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
	assert.True(t, resilience.IsTransient(err))
}
