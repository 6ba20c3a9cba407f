package bot

import (
	"context"
	"fmt"

	"github.com/angelmondragon/utilitysplit/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the part of *tgbotapi.BotAPI the poller needs.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type handler interface {
	Handle(ctx context.Context, msg *tgbotapi.Message) string
}

// Bot long-polls Telegram and answers commands in the chat they came from.
type Bot struct {
	api         API
	router      handler
	logg        *logger.Logger
	pollTimeout int
}

func New(api API, router handler, logg *logger.Logger, pollTimeout int) (*Bot, error) {
	if api == nil {
		return nil, fmt.Errorf("telegram api required")
	}
	if router == nil {
		return nil, fmt.Errorf("router required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pollTimeout <= 0 {
		pollTimeout = 60
	}
	return &Bot{api: api, router: router, logg: logg, pollTimeout: pollTimeout}, nil
}

// Run processes updates until ctx is canceled. Each update is handled to
// completion before the next one is read.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(cfg)
	defer b.api.StopReceivingUpdates()

	b.logg.Info(ctx, "bot polling started")
	for {
		select {
		case <-ctx.Done():
			b.logg.Info(ctx, "bot polling stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	ctx = b.logg.WithField(ctx, "update_id", update.UpdateID)
	defer func() {
		if rec := recover(); rec != nil {
			b.logg.Error(ctx, "command panicked", fmt.Errorf("%v", rec))
		}
	}()

	reply := b.router.Handle(ctx, msg)
	if reply == "" {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		b.logg.Error(ctx, "reply not sent", err)
	}
}
