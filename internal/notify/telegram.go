package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the slice of *tgbotapi.BotAPI used for outbound messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier delivers messages through a Telegram bot. Member ids are
// Telegram user ids, which double as the private chat id.
type TelegramNotifier struct {
	bot         Sender
	groupChatID int64
}

// NewTelegramNotifier builds a notifier posting group messages to groupChatID.
func NewTelegramNotifier(bot Sender, groupChatID int64) (*TelegramNotifier, error) {
	if bot == nil {
		return nil, errors.New("telegram bot required")
	}
	if groupChatID == 0 {
		return nil, errors.New("telegram group chat id required")
	}
	return &TelegramNotifier{bot: bot, groupChatID: groupChatID}, nil
}

func (n *TelegramNotifier) SendToMember(_ context.Context, memberID, text string, actions ...Action) Delivery {
	chatID, err := strconv.ParseInt(memberID, 10, 64)
	if err != nil {
		return Failed(fmt.Errorf("member id %q is not a telegram id: %w", memberID, err))
	}
	return n.send(chatID, text, actions, true)
}

func (n *TelegramNotifier) SendToGroup(_ context.Context, text string, actions ...Action) Delivery {
	return n.send(n.groupChatID, text, actions, false)
}

func (n *TelegramNotifier) send(chatID int64, text string, actions []Action, private bool) Delivery {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup, ok := keyboard(actions); ok {
		msg.ReplyMarkup = markup
	}
	if _, err := n.bot.Send(msg); err != nil {
		if private && isUnreachable(err) {
			return Unreachable(err)
		}
		return Failed(err)
	}
	return Delivered()
}

func keyboard(actions []Action) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range actions {
		if a.URL == "" {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(a.Label, a.URL)))
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// isUnreachable matches the Bot API answers for a user who never started the
// bot or blocked it.
func isUnreachable(err error) bool {
	var code int
	var message string
	var ptr *tgbotapi.Error
	var val tgbotapi.Error
	switch {
	case errors.As(err, &ptr):
		code, message = ptr.Code, ptr.Message
	case errors.As(err, &val):
		code, message = val.Code, val.Message
	default:
		message = err.Error()
	}
	message = strings.ToLower(message)
	if code == http.StatusForbidden {
		return true
	}
	return strings.Contains(message, "chat not found") ||
		strings.Contains(message, "bot was blocked") ||
		strings.Contains(message, "can't initiate conversation")
}
