// Package registration turns inbound chat messages into registrations for
// the next completed wash cycle.
package registration

import (
	"context"
	"strings"
	"time"

	"github.com/sweeney/washer-notify/internal/line"
	"github.com/sweeney/washer-notify/internal/logger"
	"github.com/sweeney/washer-notify/internal/logic"
	"github.com/sweeney/washer-notify/internal/mqtt"
	"github.com/sweeney/washer-notify/internal/status"
)

// Config holds the conversation texts.
type Config struct {
	// Trigger is the message that registers the sender.
	Trigger string
	// Ack is the reply sent after a successful registration.
	Ack string
}

// Handler registers senders of the trigger text as the recipient of the
// next completion notification.
type Handler struct {
	cycle     *logic.Cycle
	messenger line.Messenger
	publisher mqtt.Publisher
	tracker   *status.Tracker
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

// New creates a Handler. publisher may be mqtt.NopPublisher{} when no broker
// is configured.
func New(cycle *logic.Cycle, messenger line.Messenger, publisher mqtt.Publisher, tracker *status.Tracker, cfg Config, log *logger.Logger) *Handler {
	return &Handler{
		cycle:     cycle,
		messenger: messenger,
		publisher: publisher,
		tracker:   tracker,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// OnInboundMessage handles one inbound text message. It reports whether the
// message was the trigger. Anything else is ignored without a reply.
func (h *Handler) OnInboundMessage(ctx context.Context, senderID, replyToken, text string) bool {
	if strings.TrimSpace(text) != h.cfg.Trigger || senderID == "" {
		h.log.Debugw("message_ignored", "sender", line.ShortID(senderID))
		return false
	}

	ev := h.cycle.Register(senderID, h.now())
	h.tracker.Update(h.cycle.State())
	h.log.Infow("registered", "sender", line.ShortID(senderID), "previous_phase", ev.From)

	if err := h.publisher.Publish(ev); err != nil {
		h.log.Warnw("mqtt_publish_failed", "event", ev.Type, "err", err)
	}

	// A lost acknowledgement does not undo the registration.
	if err := h.messenger.ReplyText(ctx, replyToken, h.cfg.Ack); err != nil {
		h.log.Errorw("ack_failed", "sender", line.ShortID(senderID), "err", err)
	}
	return true
}
