package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/danghamo/mongoidentity/pkg/logger"
)

// Event is an identity lifecycle event
type Event interface {
	// EventName returns the type of event, used as topic suffix
	EventName() string
}

// UserRegistered is published after a user document is first stored
type UserRegistered struct {
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventName returns the type of event
func (UserRegistered) EventName() string { return "UserRegistered" }

// SignInSucceeded is published after a successful credential check
type SignInSucceeded struct {
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventName returns the type of event
func (SignInSucceeded) EventName() string { return "SignInSucceeded" }

// SignInFailed is published after a failed credential check
type SignInFailed struct {
	UserID     string    `json:"user_id,omitempty"`
	UserName   string    `json:"user_name"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventName returns the type of event
func (SignInFailed) EventName() string { return "SignInFailed" }

// UserLockedOut is published when repeated failures lock an account
type UserLockedOut struct {
	UserID     string    `json:"user_id"`
	Until      time.Time `json:"until"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventName returns the type of event
func (UserLockedOut) EventName() string { return "UserLockedOut" }

// Publisher publishes identity lifecycle events
type Publisher interface {
	Publish(event Event) error
}

// Bus is an in-process event bus built on Watermill's gochannel Pub/Sub.
//
// The document stores publish nothing; only the account service emits
// events, so a process-local transport is enough here.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *logger.Logger
}

// NewBus creates a new in-process event bus
func NewBus(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	pubsub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)

	return &Bus{
		pubsub: pubsub,
		logger: log.WithComponent("events"),
	}
}

// Topic returns the topic an event type is published on
func Topic(eventName string) string {
	return "identity-events." + eventName
}

// Publish marshals the event to JSON and publishes it on its topic
func (b *Bus) Publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	return b.pubsub.Publish(Topic(event.EventName()), msg)
}

// Subscribe returns a channel of messages for the given event name.
// The subscription ends when ctx is cancelled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, eventName string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, Topic(eventName))
}

// Close shuts the bus down, closing all subscriber channels
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
