/*
Package notify contains the outbound notification collaborators.

The engine treats notification delivery as best-effort: callers log and
swallow dispatch errors, so implementations here never need to be
transactional or retried by the engine itself.
*/
package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogDispatcher writes every notification to the structured log instead of
// sending it anywhere. The default collaborator for development and tests;
// production deployments swap in a real mail or chat integration.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, recipient string, payload map[string]any) error {
	d.log.Info("notification dispatched",
		zap.String("recipient", recipient),
		zap.Any("payload", payload))
	return nil
}

// CollectDispatcher records every dispatched notification in memory. For
// tests that assert on notification behavior.
type CollectDispatcher struct {
	Sent []SentNotification
}

type SentNotification struct {
	Recipient string
	Payload   map[string]any
}

func (d *CollectDispatcher) Dispatch(ctx context.Context, recipient string, payload map[string]any) error {
	d.Sent = append(d.Sent, SentNotification{Recipient: recipient, Payload: payload})
	return nil
}
