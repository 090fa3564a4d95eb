package messaging

import (
	"errors"
	"time"

	"github.com/boristopalov/gridplan/pkg/core"
)

var (
	ErrUnknownRecipient = errors.New("unknown recipient")
	ErrInboxFull        = errors.New("recipient inbox is full")
)

// Message is a delivery from one participant to one or more agents
type Message struct {
	From      string    // sender, e.g. "planner"
	To        []string  // recipient agent ids (empty means broadcast)
	Content   any       // payload, usually a core.Subgoal
	Timestamp time.Time // when the message was sent
}

// SubgoalMessage addresses sg to the agent it names
func SubgoalMessage(from string, sg core.Subgoal) Message {
	return Message{
		From:      from,
		To:        []string{sg.AgentID},
		Content:   sg,
		Timestamp: time.Now(),
	}
}

// Broker handles message routing between the planner and agents
type Broker interface {
	// Publish sends a message to specified recipients
	Publish(msg Message) error
	// Subscribe registers an agent to receive messages
	Subscribe(agentID string, ch chan<- Message) error
	// Unsubscribe removes an agent's subscription
	Unsubscribe(agentID string) error
}
