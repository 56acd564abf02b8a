package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/internal/models"
	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
)

const (
	InboxChannelPrefix = "inbox:"
	InboxEventMessage  = "message"
)

// InboxEvent is the payload broadcast over Redis and the inbox WebSocket.
type InboxEvent struct {
	Type      string    `json:"type"`
	MessageID string    `json:"message_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Inbox fans new messages out to live listeners of the recipient.
type Inbox struct {
	client *redis.Client
}

func NewInbox(client *redis.Client) *Inbox {
	return &Inbox{client: client}
}

func InboxChannel(userID string) string {
	return InboxChannelPrefix + userID
}

// PublishMessage implements MessagePublisher.
func (i *Inbox) PublishMessage(ctx context.Context, userID string, msg models.Message) error {
	data, err := json.Marshal(InboxEvent{
		Type:      InboxEventMessage,
		MessageID: msg.ID.Hex(),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return err
	}
	return i.client.Publish(ctx, InboxChannel(userID), data).Err()
}

// InboxSubscription delivers events for one user until Close or ctx cancellation.
type InboxSubscription struct {
	pubsub *redis.PubSub
	events chan InboxEvent
	done   chan struct{}
	once   sync.Once
}

// Subscribe listens on the user's channel. It returns once Redis has confirmed the
// subscription, so events published afterwards are not missed.
func (i *Inbox) Subscribe(ctx context.Context, userID string) (*InboxSubscription, error) {
	pubsub := i.client.Subscribe(ctx, InboxChannel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe inbox: %w", err)
	}

	sub := &InboxSubscription{
		pubsub: pubsub,
		events: make(chan InboxEvent, 16),
		done:   make(chan struct{}),
	}
	go sub.run(ctx)
	return sub, nil
}

func (s *InboxSubscription) run(ctx context.Context) {
	defer close(s.events)

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event InboxEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Log(ctx).Warn(ctx, "failed to unmarshal inbox event", zap.Error(err))
				continue
			}
			select {
			case s.events <- event:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}

// Events is closed when the subscription ends.
func (s *InboxSubscription) Events() <-chan InboxEvent {
	return s.events
}

func (s *InboxSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
