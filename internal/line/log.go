package line

import (
	"context"

	"github.com/sweeney/washer-notify/internal/logger"
)

// LogMessenger logs outbound messages instead of sending them.
// It backs dry runs where no channel credentials are configured.
type LogMessenger struct {
	Log *logger.Logger
}

// PushText logs the push.
func (m LogMessenger) PushText(ctx context.Context, to, text string) error {
	m.Log.Infow("dry_run_push", "to", ShortID(to), "text", text)
	return nil
}

// ReplyText logs the reply.
func (m LogMessenger) ReplyText(ctx context.Context, replyToken, text string) error {
	m.Log.Infow("dry_run_reply", "reply_token", replyToken, "text", text)
	return nil
}
