// Package model holds the UI-facing state cache between the daemon client
// and the tview widgets.
package model

import (
	"context"
	"sync"
	"time"

	"github.com/mzahid/dialdesk/internal/inbox"
	"github.com/mzahid/dialdesk/internal/tui/client"
)

// ViewModel caches daemon state and exposes snapshots the views can render
// from the UI goroutine.
type ViewModel struct {
	mu sync.RWMutex

	client        *client.Client
	status        *client.Status
	conversations []inbox.Conversation
	activeID      string

	Flash Flash
}

// NewViewModel creates a view model backed by the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{client: c}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	return nil
}

// LoadConversations fetches the conversation list.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	convs, err := vm.client.Conversations(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = convs
	vm.mu.Unlock()
	return nil
}

// OpenConversation selects a conversation on the daemon, which marks it read
// and pins it against incoming unread bumps, then caches it as active.
func (vm *ViewModel) OpenConversation(ctx context.Context, id string) (*inbox.Conversation, error) {
	conv, err := vm.client.Select(ctx, id)
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	vm.activeID = id
	vm.mu.Unlock()
	return conv, nil
}

// SyncNow asks the daemon for an immediate sync pass.
func (vm *ViewModel) SyncNow(ctx context.Context) error {
	return vm.client.SyncNow(ctx)
}

// SendText queues an outbound message for the given phone number.
func (vm *ViewModel) SendText(ctx context.Context, phone, text string) error {
	if _, err := vm.client.SendMessage(ctx, phone, text); err != nil {
		return err
	}
	vm.Flash.Set("Message queued", 3*time.Second)
	return nil
}

// GetConversations returns a snapshot of the conversation list.
func (vm *ViewModel) GetConversations() []inbox.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// ActiveConversation returns the cached copy of the active conversation,
// or nil when nothing is open.
func (vm *ViewModel) ActiveConversation() *inbox.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for i := range vm.conversations {
		if vm.conversations[i].ID == vm.activeID {
			c := vm.conversations[i]
			return &c
		}
	}
	return nil
}

// ActiveID returns the id of the open conversation, or empty.
func (vm *ViewModel) ActiveID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeID
}

// CloseConversation clears the active conversation.
func (vm *ViewModel) CloseConversation() {
	vm.mu.Lock()
	vm.activeID = ""
	vm.mu.Unlock()
}

// GetStatus returns the last fetched daemon status.
func (vm *ViewModel) GetStatus() *client.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}
