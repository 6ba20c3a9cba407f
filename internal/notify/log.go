package notify

import (
	"context"

	"github.com/angelmondragon/utilitysplit/pkg/logger"
)

// LogNotifier writes messages to the structured log. It stands in for the
// chat transport when no bot token is configured.
type LogNotifier struct {
	logg *logger.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) SendToMember(ctx context.Context, memberID, text string, actions ...Action) Delivery {
	ctx = n.logg.WithMemberID(ctx, memberID)
	n.logg.Info(n.logg.WithFields(ctx, map[string]any{"text": text, "actions": len(actions)}), "notify member")
	return Delivered()
}

func (n *LogNotifier) SendToGroup(ctx context.Context, text string, actions ...Action) Delivery {
	n.logg.Info(n.logg.WithFields(ctx, map[string]any{"text": text, "actions": len(actions)}), "notify group")
	return Delivered()
}
