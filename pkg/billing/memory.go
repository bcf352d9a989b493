package billing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLedger is an in-memory Ledger for tests and local
// development. Individual operations can be made to fail.
type MemoryLedger struct {
	mu            sync.Mutex
	subscriptions map[string]*Subscription
	nextItemID    int

	// FailCreate, FailUpdate, and FailDelete make the corresponding
	// operation return the given error instead of mutating state.
	FailCreate error
	FailUpdate error
	FailDelete error
	FailGet    error

	// Calls counts invocations per operation name
	Calls map[string]int
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		subscriptions: make(map[string]*Subscription),
		Calls:         make(map[string]int),
	}
}

// AddSubscription seeds a subscription
func (l *MemoryLedger) AddSubscription(sub *Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *sub
	copied.Items = append([]LineItem(nil), sub.Items...)
	l.subscriptions[sub.ID] = &copied
}

// GetSubscription fetches a subscription with its line items
func (l *MemoryLedger) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls["get"]++
	if l.FailGet != nil {
		return nil, l.FailGet
	}
	sub, ok := l.subscriptions[subscriptionID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	copied := *sub
	copied.Items = append([]LineItem(nil), sub.Items...)
	return &copied, nil
}

// CreateLineItem adds a line item to a subscription
func (l *MemoryLedger) CreateLineItem(ctx context.Context, subscriptionID, priceID string, quantity int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls["create"]++
	if l.FailCreate != nil {
		return l.FailCreate
	}
	sub, ok := l.subscriptions[subscriptionID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	l.nextItemID++
	sub.Items = append(sub.Items, LineItem{
		ID:               fmt.Sprintf("si_%04d", l.nextItemID),
		PriceID:          priceID,
		Quantity:         quantity,
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	})
	return nil
}

// UpdateLineItemQuantity sets an existing line item's quantity
func (l *MemoryLedger) UpdateLineItemQuantity(ctx context.Context, itemID string, quantity int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls["update"]++
	if l.FailUpdate != nil {
		return l.FailUpdate
	}
	for _, sub := range l.subscriptions {
		for i := range sub.Items {
			if sub.Items[i].ID == itemID {
				sub.Items[i].Quantity = quantity
				return nil
			}
		}
	}
	return fmt.Errorf("line item %s not found", itemID)
}

// DeleteLineItem removes a line item from its subscription
func (l *MemoryLedger) DeleteLineItem(ctx context.Context, itemID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls["delete"]++
	if l.FailDelete != nil {
		return l.FailDelete
	}
	for _, sub := range l.subscriptions {
		for i := range sub.Items {
			if sub.Items[i].ID == itemID {
				sub.Items = append(sub.Items[:i], sub.Items[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("line item %s not found", itemID)
}

// SeatQuantity returns the quantity on the subscription's seat item
// matching any of the given price ids, or zero when absent.
func (l *MemoryLedger) SeatQuantity(subscriptionID string, prices PriceConfig) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	sub, ok := l.subscriptions[subscriptionID]
	if !ok {
		return 0
	}
	for _, item := range sub.Items {
		if prices.IsSeatPrice(item.PriceID) {
			return item.Quantity
		}
	}
	return 0
}

// ItemCount returns how many line items a subscription carries
func (l *MemoryLedger) ItemCount(subscriptionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	sub, ok := l.subscriptions[subscriptionID]
	if !ok {
		return 0
	}
	return len(sub.Items)
}
