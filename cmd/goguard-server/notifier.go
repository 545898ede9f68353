package main

import (
	"context"

	goGuard "github.com/MrEthical07/goGuard"
	"go.uber.org/zap"
)

// logNotifier stands in for mail delivery: it logs the message kind and
// recipient. Token payloads are never logged.
type logNotifier struct {
	log *zap.Logger
}

func newLogNotifier(log *zap.Logger) *logNotifier {
	return &logNotifier{log: log.Named("notify")}
}

func (n *logNotifier) Notify(_ context.Context, kind goGuard.NotificationKind, recipient string, payload map[string]string) bool {
	n.log.Info("notification queued",
		zap.String("kind", string(kind)),
		zap.String("recipient", recipient),
		zap.Int("fields", len(payload)),
	)
	return true
}
