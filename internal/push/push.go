// Package push delivers notifications to resident devices. The concrete
// sender is Firebase Cloud Messaging; deployments without FCM credentials
// fall back to a logging no-op so notification rows are still written.
package push

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Notification is one push message fanned out to a set of device tokens.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Sender delivers a notification to device tokens. Implementations must
// tolerate stale or invalid tokens without failing the whole batch.
type Sender interface {
	Send(ctx context.Context, tokens []string, n Notification) error
}

// FCMSender sends through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
	logger *slog.Logger
}

// NewFCMSender initializes the Firebase app from a service account file and
// returns a messaging sender.
func NewFCMSender(ctx context.Context, credentialsFile string, logger *slog.Logger) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase messaging: %w", err)
	}

	return &FCMSender{client: client, logger: logger}, nil
}

// Send fans the notification out to every token. Per-token failures are
// logged and skipped; only a transport-level failure is returned.
func (s *FCMSender) Send(ctx context.Context, tokens []string, n Notification) error {
	if len(tokens) == 0 {
		return nil
	}

	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
	}

	resp, err := s.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending push notification: %w", err)
	}

	if resp.FailureCount > 0 {
		for i, r := range resp.Responses {
			if r.Error != nil {
				s.logger.Warn("push delivery failed for token",
					"token_index", i, "error", r.Error)
			}
		}
	}
	s.logger.Debug("push notification sent",
		"success", resp.SuccessCount, "failure", resp.FailureCount)
	return nil
}

// NoopSender logs instead of sending. Used when FCM is not configured.
type NoopSender struct {
	Logger *slog.Logger
}

func (s *NoopSender) Send(_ context.Context, tokens []string, n Notification) error {
	if s.Logger != nil {
		s.Logger.Debug("push disabled, dropping notification",
			"title", n.Title, "tokens", len(tokens))
	}
	return nil
}
