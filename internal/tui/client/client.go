// Package client is the HTTP client for the daemon's local API, shared by
// dialdeskctl and the terminal UI.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/mzahid/dialdesk/internal/inbox"
	"github.com/mzahid/dialdesk/internal/store"
)

// Client talks to a running daemon over its HTTP API. The session cookie
// from Login is held in the jar for the client's lifetime.
type Client struct {
	base string
	http *http.Client
}

// Status is the daemon's status response.
type Status struct {
	State         string `json:"state"`
	Conversations int    `json:"conversations"`
	Selected      string `json:"selected"`
}

// Event is one daemon event from the SSE feed.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// New creates a client for the API at baseURL (e.g. http://127.0.0.1:8385).
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}, nil
}

// Register creates a dashboard account.
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.postJSON(ctx, "/api/auth/register",
		map[string]string{"username": username, "password": password}, nil)
}

// Login authenticates and stores the session cookie.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.postJSON(ctx, "/api/auth/login",
		map[string]string{"username": username, "password": password}, nil)
}

// Status returns the daemon state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.getJSON(ctx, "/api/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SyncNow triggers an immediate provider sync and waits for it.
func (c *Client) SyncNow(ctx context.Context) error {
	return c.postJSON(ctx, "/api/sync", nil, nil)
}

// Conversations returns the full inbox, newest first.
func (c *Client) Conversations(ctx context.Context) ([]inbox.Conversation, error) {
	var convs []inbox.Conversation
	if err := c.getJSON(ctx, "/api/conversations", &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Select pins a conversation as on-screen and returns it marked read.
func (c *Client) Select(ctx context.Context, id string) (*inbox.Conversation, error) {
	var conv inbox.Conversation
	if err := c.postJSON(ctx, "/api/conversations/"+id+"/select", nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// MarkRead clears a conversation's unread state.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.postJSON(ctx, "/api/conversations/"+id+"/read", nil, nil)
}

// SendMessage queues an outbound message and returns its client id.
func (c *Client) SendMessage(ctx context.Context, phone, body string) (string, error) {
	var resp struct {
		ClientMsgID string `json:"client_msg_id"`
	}
	err := c.postJSON(ctx, "/api/messages",
		map[string]string{"phone": phone, "body": body}, &resp)
	return resp.ClientMsgID, err
}

// Contacts returns the saved address book.
func (c *Client) Contacts(ctx context.Context) ([]store.Contact, error) {
	var contacts []store.Contact
	if err := c.getJSON(ctx, "/api/contacts", &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// SaveContact creates or updates a contact.
func (c *Client) SaveContact(ctx context.Context, contact *store.Contact) error {
	return c.postJSON(ctx, "/api/contacts", contact, contact)
}

// Templates returns the saved message templates.
func (c *Client) Templates(ctx context.Context) ([]store.Template, error) {
	var templates []store.Template
	if err := c.getJSON(ctx, "/api/templates", &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// Events subscribes to the daemon's SSE feed. The channel closes when the
// connection drops or ctx is cancelled.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client has a timeout; streams need their own without one.
	streaming := &http.Client{Jar: c.http.Jar}
	resp, err := streaming.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("events: unexpected status %d", resp.StatusCode)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()
		r := bufio.NewReader(resp.Body)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s (status %d)", req.Method, req.URL.Path, apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
