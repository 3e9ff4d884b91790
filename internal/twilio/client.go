// Package twilio is the REST boundary to the telephony provider: message
// and call listings for the sync poller, plus message send and call
// origination for the outbox and dial surface.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.twilio.com"
	apiVersion     = "2010-04-01"
	pageSize       = 200
	maxAttempts    = 3
)

// Config carries the provider account credentials.
type Config struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
}

// RateLimitError is returned when the provider keeps answering 429 after
// every retry. Callers treat it as transient.
type RateLimitError struct {
	RetryAfter string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("provider rate limited (retry after %ss)", e.RetryAfter)
	}
	return "provider rate limited"
}

// Client talks to the provider REST API with basic auth and bounded 429
// retries. BaseURL may be overridden before first use, which tests rely on.
type Client struct {
	cfg     Config
	logger  *zap.Logger
	http    *http.Client
	sleep   func(context.Context, time.Duration) bool
	BaseURL string
}

// NewClient creates a provider client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		logger:  logger,
		http:    &http.Client{Timeout: 30 * time.Second},
		sleep:   sleepCtx,
		BaseURL: defaultBaseURL,
	}
}

// PhoneNumber returns the account's configured number.
func (c *Client) PhoneNumber() string {
	return c.cfg.PhoneNumber
}

func (c *Client) accountPath(resource string) string {
	return fmt.Sprintf("%s/%s/Accounts/%s/%s", c.BaseURL, apiVersion, c.cfg.AccountSID, resource)
}

// do issues the request, retrying on 429 up to maxAttempts. The provider's
// Retry-After header is honored when present, otherwise the wait grows by
// 2s per attempt.
func (c *Client) do(ctx context.Context, method, rawURL string, body url.Values) (*http.Response, error) {
	var lastRetryAfter string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = strings.NewReader(body.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
		if body != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("provider request: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		lastRetryAfter = resp.Header.Get("Retry-After")
		_ = resp.Body.Close()

		wait := time.Duration(attempt+1) * 2 * time.Second
		if secs, err := strconv.Atoi(lastRetryAfter); err == nil {
			wait = time.Duration(secs) * time.Second
		}
		c.logger.Warn("provider rate limited",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait))

		// A huge Retry-After must not outlive shutdown.
		if !c.sleep(ctx, wait) {
			return nil, ctx.Err()
		}
	}
	return nil, &RateLimitError{RetryAfter: lastRetryAfter}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ListMessages fetches the message list filtered by the given query
// values (From, To). Pagination is capped at one page of pageSize.
func (c *Client) ListMessages(ctx context.Context, filter url.Values) ([]MessageRecord, error) {
	if filter == nil {
		filter = url.Values{}
	}
	filter.Set("PageSize", strconv.Itoa(pageSize))
	var list messageList
	if err := c.getJSON(ctx, c.accountPath("Messages.json")+"?"+filter.Encode(), &list); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return list.Messages, nil
}

// ListCalls fetches the account's call list, both directions.
func (c *Client) ListCalls(ctx context.Context) ([]CallRecord, error) {
	q := url.Values{}
	q.Set("PageSize", strconv.Itoa(pageSize))
	var list callList
	if err := c.getJSON(ctx, c.accountPath("Calls.json")+"?"+q.Encode(), &list); err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return list.Calls, nil
}

// ListRecordings fetches a call's recordings sub-resource. uri is the
// provider-relative path from the call record.
func (c *Client) ListRecordings(ctx context.Context, uri string) ([]RecordingRecord, error) {
	var list recordingList
	if err := c.getJSON(ctx, c.BaseURL+uri, &list); err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return list.Recordings, nil
}

// RecordingMediaURL returns the playable media URL for a recording sid.
func (c *Client) RecordingMediaURL(recordingSID string) string {
	return c.accountPath("Recordings/" + recordingSID + ".mp3")
}

// SendMessage sends an SMS from the configured number and returns the
// provider-assigned message sid. statusCallback may be empty.
func (c *Client) SendMessage(ctx context.Context, to, body, statusCallback string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.cfg.PhoneNumber)
	form.Set("Body", body)
	if statusCallback != "" {
		form.Set("StatusCallback", statusCallback)
	}

	resp, err := c.do(ctx, http.MethodPost, c.accountPath("Messages.json"), form)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("send rejected: %s", out.Message)
	}
	return out.SID, nil
}

// MakeCall originates an outbound call from the configured number,
// pointing the provider at twimlURL for call instructions.
func (c *Client) MakeCall(ctx context.Context, to, twimlURL string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.cfg.PhoneNumber)
	form.Set("Url", twimlURL)

	resp, err := c.do(ctx, http.MethodPost, c.accountPath("Calls.json"), form)
	if err != nil {
		return "", fmt.Errorf("make call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode call response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("call rejected: %s", out.Message)
	}
	return out.SID, nil
}
