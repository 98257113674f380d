// Package line talks to the LINE Messaging API: pushing and replying with
// text messages, and verifying and decoding inbound webhook callbacks.
package line

import "context"

// Messenger delivers text messages to users.
type Messenger interface {
	// PushText sends text to a user id outside of any conversation turn.
	PushText(ctx context.Context, to, text string) error

	// ReplyText answers an inbound event using its one-shot reply token.
	ReplyText(ctx context.Context, replyToken, text string) error
}

// DefaultAPIBase is the production Messaging API endpoint.
const DefaultAPIBase = "https://api.line.me"

// SignatureHeader carries the base64 HMAC-SHA256 of the callback body.
const SignatureHeader = "X-Line-Signature"

// ShortID abbreviates a user id for log output.
func ShortID(id string) string {
	if len(id) <= 7 {
		return id
	}
	return id[:7] + "..."
}
