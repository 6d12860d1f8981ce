// Package telegram connects the bot to Telegram over long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskbot/internal/conversation"
	"github.com/gosuda/taskbot/internal/dispatch"
	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/messenger"
)

const pollTimeoutSeconds = 30

// Bot is the subset of tgbotapi.BotAPI the adapter uses.
type Bot interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Submitter queues an inbound message for asynchronous processing.
type Submitter interface {
	Submit(ctx context.Context, in conversation.Inbound, respond dispatch.RespondFunc)
}

// IdentityLinker maps Telegram accounts onto directory entries.
type IdentityLinker interface {
	Resolve(ctx context.Context, platform, externalID string) (string, error)
	Link(ctx context.Context, platform, externalID, key string) (*domain.Employee, error)
}

const (
	msgShareContact  = "Hi! To get started, please share your phone number so I can find you in the directory."
	msgNotOwnContact = "Please share your own contact using the button below."
	msgNotInDir      = "I couldn't find that number in the directory. Please ask your manager to add you."
	msgTrouble       = "Sorry, I'm having trouble right now. Please try again in a moment."
)

// Adapter receives Telegram updates and feeds them to the dispatcher.
// Accounts are linked the first time the user shares their contact.
type Adapter struct {
	bot        Bot
	dispatcher Submitter
	linker     IdentityLinker
	messenger  *TelegramMessenger
}

func NewAdapter(bot Bot, dispatcher Submitter, linker IdentityLinker) *Adapter {
	return &Adapter{
		bot:        bot,
		dispatcher: dispatcher,
		linker:     linker,
		messenger:  NewTelegramMessenger(bot),
	}
}

// Messenger returns the outbound side, for registration with the notifier.
func (a *Adapter) Messenger() *TelegramMessenger {
	return a.messenger
}

// Run long-polls for updates until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds

	updates := a.bot.GetUpdatesChan(u)
	log.Info().Msg("telegram: polling for updates")

	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			a.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes a single update.
func (a *Adapter) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return
	}

	chatID := msg.Chat.ID
	externalID := strconv.FormatInt(msg.From.ID, 10)
	logger := log.With().Int64("chat_id", chatID).Str("telegram_user", externalID).Logger()

	if msg.Contact != nil {
		a.handleContact(ctx, msg, externalID)
		return
	}

	phone, err := a.linker.Resolve(ctx, messenger.PlatformTelegram, externalID)
	if errors.Is(err, domain.ErrNotFound) {
		a.requestContact(chatID, msgShareContact)
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("telegram: resolve link")
		a.send(tgbotapi.NewMessage(chatID, msgTrouble))
		return
	}

	// /start from a linked user carries no request.
	if msg.IsCommand() && msg.Command() == "start" {
		a.send(tgbotapi.NewMessage(chatID, "Welcome back! How can I help?"))
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	in := conversation.Inbound{
		UserKey:   phone,
		Text:      text,
		MessageID: fmt.Sprintf("telegram:%d:%d", chatID, msg.MessageID),
	}
	if msg.Document != nil {
		in.Attachment = &domain.Attachment{
			ID:       msg.Document.FileID,
			MimeType: msg.Document.MimeType,
			Filename: msg.Document.FileName,
		}
	}

	a.dispatcher.Submit(ctx, in, func(ctx context.Context, reply conversation.Reply) {
		if err := a.messenger.Reply(ctx, chatID, reply); err != nil {
			logger.Error().Err(err).Msg("telegram: reply failed")
		}
	})
}

func (a *Adapter) handleContact(ctx context.Context, msg *tgbotapi.Message, externalID string) {
	chatID := msg.Chat.ID
	if msg.Contact.UserID != msg.From.ID {
		a.requestContact(chatID, msgNotOwnContact)
		return
	}

	emp, err := a.linker.Link(ctx, messenger.PlatformTelegram, externalID, msg.Contact.PhoneNumber)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.send(removeKeyboard(tgbotapi.NewMessage(chatID, msgNotInDir)))
	case err != nil:
		log.Error().Err(err).Int64("chat_id", chatID).Msg("telegram: link contact")
		a.send(tgbotapi.NewMessage(chatID, msgTrouble))
	default:
		a.send(removeKeyboard(tgbotapi.NewMessage(chatID, "Thanks "+emp.Name+", you're all set. How can I help?")))
	}
}

func (a *Adapter) requestContact(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewOneTimeReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("Share my phone number")),
	)
	a.send(msg)
}

func (a *Adapter) send(c tgbotapi.Chattable) {
	if _, err := a.bot.Send(c); err != nil {
		log.Error().Err(err).Msg("telegram: send failed")
	}
}

func removeKeyboard(msg tgbotapi.MessageConfig) tgbotapi.MessageConfig {
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	return msg
}
