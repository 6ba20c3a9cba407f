// Package notifytest provides an in-memory notify.Notifier for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/angelmondragon/utilitysplit/internal/notify"
)

// Message is one recorded send. MemberID is empty for group messages.
type Message struct {
	MemberID string
	Text     string
	Actions  []notify.Action
}

// Recorder captures sends and can be told to fail for given members.
type Recorder struct {
	mu          sync.Mutex
	Direct      []Message
	Group       []Message
	Unreachable map[string]bool
	GroupErr    error
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{Unreachable: map[string]bool{}}
}

func (r *Recorder) SendToMember(_ context.Context, memberID, text string, actions ...notify.Action) notify.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Unreachable[memberID] {
		return notify.Unreachable(nil)
	}
	r.Direct = append(r.Direct, Message{MemberID: memberID, Text: text, Actions: actions})
	return notify.Delivered()
}

func (r *Recorder) SendToGroup(_ context.Context, text string, actions ...notify.Action) notify.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GroupErr != nil {
		return notify.Failed(r.GroupErr)
	}
	r.Group = append(r.Group, Message{Text: text, Actions: actions})
	return notify.Delivered()
}

// GroupTexts returns the text of every group message so far.
func (r *Recorder) GroupTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Group))
	for _, m := range r.Group {
		out = append(out, m.Text)
	}
	return out
}

// DirectTo returns the direct messages sent to memberID.
func (r *Recorder) DirectTo(memberID string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.Direct {
		if m.MemberID == memberID {
			out = append(out, m)
		}
	}
	return out
}
