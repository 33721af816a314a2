package model

import (
	"context"
	"sync"

	"github.com/matheus3301/freightdesk/internal/api/apiv1"
)

// Source is the slice of the daemon client the view model reads from.
type Source interface {
	Conversations(ctx context.Context) ([]apiv1.Conversation, error)
	Unread(ctx context.Context) (int, error)
	DaemonState(ctx context.Context) (string, error)
	Shipment(ctx context.Context, conversationID string) (*apiv1.ChatShipment, error)
}

// ViewModel caches what the desk screens render and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	src           Source
	conversations []apiv1.Conversation
	unread        int
	state         string
	shipment      *apiv1.ChatShipment
	active        string

	refreshCh chan struct{}
}

// NewViewModel creates a view model reading from src.
func NewViewModel(src Source) *ViewModel {
	return &ViewModel{
		src:       src,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh signals that cached data changed.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadConversations fetches the conversation list.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	convs, err := vm.src.Conversations(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = convs
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadState fetches the daemon status.
func (vm *ViewModel) LoadState(ctx context.Context) error {
	state, err := vm.src.DaemonState(ctx)
	if err != nil {
		vm.mu.Lock()
		vm.state = "UNREACHABLE"
		vm.mu.Unlock()
		vm.signalRefresh()
		return err
	}
	vm.mu.Lock()
	vm.state = state
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadUnread fetches the unread count once; the live stream normally feeds
// SetUnread instead.
func (vm *ViewModel) LoadUnread(ctx context.Context) error {
	n, err := vm.src.Unread(ctx)
	if err != nil {
		return err
	}
	vm.SetUnread(n)
	return nil
}

// SetUnread stores the unread count and reports whether it changed.
func (vm *ViewModel) SetUnread(n int) bool {
	vm.mu.Lock()
	changed := vm.unread != n
	vm.unread = n
	vm.mu.Unlock()
	if changed {
		vm.signalRefresh()
	}
	return changed
}

// Activate marks conversationID as the open chat and loads its shipment
// header.
func (vm *ViewModel) Activate(ctx context.Context, conversationID string) error {
	vm.mu.Lock()
	vm.active = conversationID
	vm.shipment = nil
	vm.mu.Unlock()

	s, err := vm.src.Shipment(ctx, conversationID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.active == conversationID {
		vm.shipment = s
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Deactivate forgets the open chat.
func (vm *ViewModel) Deactivate() {
	vm.mu.Lock()
	vm.active = ""
	vm.shipment = nil
	vm.mu.Unlock()
}

// Conversations returns a snapshot of the conversation list.
func (vm *ViewModel) Conversations() []apiv1.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// Conversation finds a listed conversation by id.
func (vm *ViewModel) Conversation(id string) (apiv1.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return apiv1.Conversation{}, false
}

// Unread returns the last known unread count.
func (vm *ViewModel) Unread() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.unread
}

// State returns the last known daemon status.
func (vm *ViewModel) State() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.state
}

// Active returns the open conversation id, or "".
func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Shipment returns the open chat's shipment header, if loaded.
func (vm *ViewModel) Shipment() *apiv1.ChatShipment {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.shipment
}
