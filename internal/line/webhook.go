package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// ErrInvalidSignature is returned when the callback signature does not match.
var ErrInvalidSignature = webhook.ErrInvalidSignature

// TextMessage is an inbound text message extracted from a callback.
type TextMessage struct {
	UserID     string
	ReplyToken string
	Text       string
}

// Sign returns the signature LINE sends for body. Callers use it to build
// signed callbacks, e.g. for local testing of the webhook.
func Sign(channelSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ParseRequest verifies the callback signature, decodes the body and returns
// the text messages it carries in order. Other event and message types are
// skipped.
func ParseRequest(channelSecret string, r *http.Request) ([]TextMessage, error) {
	cb, err := webhook.ParseRequest(channelSecret, r)
	if err != nil {
		return nil, err
	}

	var msgs []TextMessage
	for _, ev := range cb.Events {
		e, ok := ev.(webhook.MessageEvent)
		if !ok {
			continue
		}
		text, ok := e.Message.(webhook.TextMessageContent)
		if !ok {
			continue
		}
		msgs = append(msgs, TextMessage{
			UserID:     sourceUserID(e.Source),
			ReplyToken: e.ReplyToken,
			Text:       text.Text,
		})
	}
	return msgs, nil
}

func sourceUserID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}
