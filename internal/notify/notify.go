// Package notify delivers operational alerts — dead-letter pressure,
// supervisor panics — to Slack. It is a direct descendant of the teacher's
// notifications service, repointed at crawl-engine events instead of
// product/billing events and simplified to a single incoming webhook
// instead of a per-organisation OAuth workspace model.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

// Notifier posts alerts to a Slack incoming webhook.
type Notifier struct {
	webhookURL string
}

// New constructs a Notifier. webhookURL may be empty, in which case every
// alert is logged and silently dropped — matching the teacher's pattern of
// treating a missing Sentry DSN as "tracking disabled" rather than fatal.
func New(webhookURL string) *Notifier {
	return &Notifier{webhookURL: webhookURL}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// DeadLetterThresholdCrossed alerts that the dead queue has grown past a
// configured threshold.
func (n *Notifier) DeadLetterThresholdCrossed(ctx context.Context, depth, threshold int) {
	n.post(ctx, ":x:", fmt.Sprintf("Dead-letter queue depth %d exceeds threshold %d", depth, threshold))
}

// SupervisorPanic alerts that a LoopSupervisor reconciliation pass recovered
// from a panic.
func (n *Notifier) SupervisorPanic(ctx context.Context, loopName string, recovered any) {
	n.post(ctx, ":rotating_light:", fmt.Sprintf("Loop %q panicked during reconciliation: %v", loopName, recovered))
}

func (n *Notifier) post(ctx context.Context, emoji, text string) {
	if !n.Enabled() {
		log.Warn().Str("text", text).Msg("notify: webhook not configured, alert dropped")
		return
	}

	msg := &slack.WebhookMessage{
		Blocks: &slack.Blocks{
			BlockSet: []slack.Block{
				slack.NewSectionBlock(
					slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("%s %s", emoji, text), false, false),
					nil,
					nil,
				),
			},
		},
	}

	if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		log.Warn().Err(err).Msg("notify: failed to deliver Slack alert")
	}
}
