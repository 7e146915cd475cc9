package internal

import (
	"context"
	"fmt"

	"github.com/gregdel/pushover"
)

// Pusher notifies a subscriber that chapters shipped.
type Pusher interface {
	Push(ctx context.Context, userKey, message string) error
}

// PushoverPusher sends notifications through Pushover.
type PushoverPusher struct {
	app *pushover.Pushover
}

var _ Pusher = (*PushoverPusher)(nil)

// NewPushoverPusher creates a pusher with the application token.
func NewPushoverPusher(token string) *PushoverPusher {
	return &PushoverPusher{app: pushover.New(token)}
}

// Push sends one message to the given user key.
func (p *PushoverPusher) Push(_ context.Context, userKey, message string) error {
	_, err := p.app.SendMessage(pushover.NewMessage(message), pushover.NewRecipient(userKey))
	if err != nil {
		return fmt.Errorf("sending push notification: %w", err)
	}
	return nil
}
