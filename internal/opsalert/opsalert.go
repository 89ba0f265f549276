// Package opsalert posts operational faults to a Slack channel. Provisioning
// and teardown failures are the kind of thing an operator must see promptly;
// everything else stays in the logs.
package opsalert

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier sends operational alerts. When no bot token is configured the
// notifier degrades to logging, so call sites never need a nil check.
type Notifier struct {
	client  *goslack.Client
	channel string
	infoToo bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. With an empty botToken the notifier is a
// logging no-op. level is "error" or "info": at "error" only faults reach
// Slack and informational notes stay in the logs.
func NewNotifier(botToken, channel, level string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{
		client:  client,
		channel: channel,
		infoToo: level == "info",
		logger:  logger,
	}
}

// IsEnabled reports whether alerts actually reach Slack.
func (n *Notifier) IsEnabled() bool {
	return n != nil && n.client != nil && n.channel != ""
}

// ProvisioningFault reports a failed home create or delete. op is "provision"
// or "teardown". Safe to call on a nil Notifier.
func (n *Notifier) ProvisioningFault(ctx context.Context, op, homeName string, cause error) {
	if n == nil {
		return
	}
	text := fmt.Sprintf(":rotating_light: home %s failed for %q: %v", op, homeName, cause)

	if !n.IsEnabled() {
		n.logger.Warn("ops alert (slack disabled)", "op", op, "home", homeName, "error", cause)
		return
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionText(text, false),
	)
	if err != nil {
		n.logger.Error("posting ops alert to slack", "error", err, "op", op, "home", homeName)
	}
}

// Info posts a plain informational message, used for successful provisioning
// of a new home. Posted to Slack only at notify level "info"; otherwise it is
// logged. Safe to call on a nil Notifier.
func (n *Notifier) Info(ctx context.Context, text string) {
	if n == nil {
		return
	}
	if !n.IsEnabled() || !n.infoToo {
		n.logger.Info("ops note", "text", text)
		return
	}

	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Error("posting ops note to slack", "error", err)
	}
}
