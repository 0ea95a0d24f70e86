// Package chat stores messages posted to named channels.
package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/okian/ludus/internal/adapters/repository"
	"github.com/okian/ludus/internal/domain/model"
	"github.com/okian/ludus/pkg/metrics"
)

// MaxContentLength bounds a message body in characters.
const MaxContentLength = 2000

const collectionPrefix = "chat_messages:"

// Channels stores chat messages per channel.
type Channels struct {
	store repository.Store
	now   func() time.Time
}

// New creates Channels over store. now may be nil.
func New(store repository.Store, now func() time.Time) *Channels {
	if now == nil {
		now = time.Now
	}
	return &Channels{store: store, now: now}
}

// Send stamps msg and appends it to channel.
func (c *Channels) Send(ctx context.Context, channel string, msg model.ChatMessage) (model.ChatMessage, error) {
	if strings.TrimSpace(channel) == "" {
		return model.ChatMessage{}, ErrMissingChannel
	}
	msg.Sender = strings.TrimSpace(msg.Sender)
	switch {
	case msg.Sender == "":
		return model.ChatMessage{}, fmt.Errorf("%w: sender is required", ErrInvalidMessage)
	case strings.TrimSpace(msg.Content) == "":
		return model.ChatMessage{}, fmt.Errorf("%w: content is required", ErrInvalidMessage)
	case utf8.RuneCountInString(msg.Content) > MaxContentLength:
		return model.ChatMessage{}, fmt.Errorf("%w: content longer than %d characters", ErrInvalidMessage, MaxContentLength)
	}
	msg.ID = uuid.NewString()
	msg.Timestamp = c.now().UTC()

	data, err := json.Marshal(msg)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("encode message: %w", err)
	}
	coll := collectionPrefix + channel
	if err := c.store.Put(ctx, coll, msg.ID, data); err != nil {
		return model.ChatMessage{}, repository.Wrap("put", coll, msg.ID, err)
	}
	metrics.RecordChatMessage()
	return msg, nil
}

// Receive returns every message of channel, oldest first.
func (c *Channels) Receive(ctx context.Context, channel string) ([]model.ChatMessage, error) {
	if strings.TrimSpace(channel) == "" {
		return nil, ErrMissingChannel
	}
	coll := collectionPrefix + channel
	values, err := c.store.Values(ctx, coll)
	if err != nil {
		return nil, repository.Wrap("values", coll, "", err)
	}
	out := make([]model.ChatMessage, 0, len(values))
	for _, v := range values {
		var m model.ChatMessage
		if err := json.Unmarshal(v, &m); err != nil {
			return nil, repository.Wrap("decode", coll, "", err)
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(x, y model.ChatMessage) int {
		if d := x.Timestamp.Compare(y.Timestamp); d != 0 {
			return d
		}
		return strings.Compare(x.ID, y.ID)
	})
	return out, nil
}
