package line

import (
	"context"
	"sync"
)

// SentMessage records one outbound message.
type SentMessage struct {
	To         string // set for pushes
	ReplyToken string // set for replies
	Text       string
}

// FakeMessenger records sent messages for test assertions.
type FakeMessenger struct {
	mu sync.Mutex

	// Pushes contains all pushed messages.
	Pushes []SentMessage

	// Replies contains all replies.
	Replies []SentMessage

	// PushError, if set, will be returned by PushText.
	PushError error

	// ReplyError, if set, will be returned by ReplyText.
	ReplyError error
}

// NewFakeMessenger creates a FakeMessenger for testing.
func NewFakeMessenger() *FakeMessenger {
	return &FakeMessenger{}
}

// PushText records the push. Failed pushes are not recorded.
func (f *FakeMessenger) PushText(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PushError != nil {
		return f.PushError
	}
	f.Pushes = append(f.Pushes, SentMessage{To: to, Text: text})
	return nil
}

// ReplyText records the reply. Failed replies are not recorded.
func (f *FakeMessenger) ReplyText(ctx context.Context, replyToken, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReplyError != nil {
		return f.ReplyError
	}
	f.Replies = append(f.Replies, SentMessage{ReplyToken: replyToken, Text: text})
	return nil
}

// PushCount returns the number of recorded pushes.
func (f *FakeMessenger) PushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Pushes)
}

// ReplyCount returns the number of recorded replies.
func (f *FakeMessenger) ReplyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Replies)
}
