package bot

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/utilitysplit/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	updates chan tgbotapi.Update
	sent    chan tgbotapi.MessageConfig
	stopped bool
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }
func (f *fakeAPI) StopReceivingUpdates()                                        { f.stopped = true }

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent <- c.(tgbotapi.MessageConfig)
	return tgbotapi.Message{}, nil
}

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, msg *tgbotapi.Message) string {
	if msg.Text == "boom" {
		panic("handler exploded")
	}
	if msg.Text == "silent" {
		return ""
	}
	return "echo: " + msg.Text
}

func TestBotRepliesInOriginatingChat(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update, 4), sent: make(chan tgbotapi.MessageConfig, 4)}
	b, err := New(api, echoHandler{}, logger.New(logger.Options{ServiceName: "bot-test", Output: io.Discard}), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	chat := &tgbotapi.Chat{ID: 77}
	api.updates <- tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{MessageID: 5, Chat: chat, Text: "boom"}}
	api.updates <- tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{MessageID: 6, Chat: chat, Text: "silent"}}
	api.updates <- tgbotapi.Update{UpdateID: 3}
	api.updates <- tgbotapi.Update{UpdateID: 4, Message: &tgbotapi.Message{MessageID: 7, Chat: chat, Text: "hi"}}

	select {
	case out := <-api.sent:
		assert.Equal(t, int64(77), out.ChatID)
		assert.Equal(t, 7, out.ReplyToMessageID)
		assert.Equal(t, "echo: hi", out.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply sent")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.True(t, api.stopped)
}
