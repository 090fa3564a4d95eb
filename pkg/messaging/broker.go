package messaging

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// SimpleBroker implements the Broker interface over buffered channels.
// Sends never block, so a single-threaded driver can publish and then let
// each agent drain its own inbox within the same tick.
type SimpleBroker struct {
	subscribers map[string]chan<- Message
	mu          sync.RWMutex
}

// NewBroker creates a new message broker
func NewBroker() *SimpleBroker {
	return &SimpleBroker{
		subscribers: make(map[string]chan<- Message),
	}
}

// Publish delivers msg to every recipient it can reach. Missing recipients
// and full inboxes are reported together after the remaining deliveries.
func (b *SimpleBroker) Publish(msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// If no recipients specified, broadcast to all subscribers
	recipients := msg.To
	if len(recipients) == 0 {
		for id := range b.subscribers {
			if id != msg.From {
				recipients = append(recipients, id)
			}
		}
		sort.Strings(recipients)
	}

	var errs []error
	for _, recipientID := range recipients {
		ch, ok := b.subscribers[recipientID]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownRecipient, recipientID))
			continue
		}

		select {
		case ch <- msg:
		default:
			errs = append(errs, fmt.Errorf("%w: %s", ErrInboxFull, recipientID))
		}
	}

	return errors.Join(errs...)
}

// Subscribe registers an agent to receive messages
func (b *SimpleBroker) Subscribe(agentID string, ch chan<- Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[agentID]; exists {
		return fmt.Errorf("agent %s is already subscribed", agentID)
	}

	b.subscribers[agentID] = ch
	return nil
}

// Unsubscribe removes an agent's subscription
func (b *SimpleBroker) Unsubscribe(agentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[agentID]; !exists {
		return fmt.Errorf("agent %s is not subscribed", agentID)
	}

	delete(b.subscribers, agentID)
	return nil
}

// Subscribers returns the subscribed agent ids in sorted order
func (b *SimpleBroker) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *SimpleBroker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string]chan<- Message)
}
