package dispense

import (
	"context"
	"fmt"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/omnikiosk/internal/flow"
)

// TelegramAnnouncer posts dispense notices to an operator chat.
type TelegramAnnouncer struct {
	bot     *telebot.Bot
	chat    telebot.ChatID
	kioskID string
}

// NewTelegramAnnouncer creates a send-only bot. apiURL overrides the Bot API endpoint when set.
func NewTelegramAnnouncer(token string, chatID int64, kioskID, apiURL string) (*TelegramAnnouncer, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		Token:   token,
		URL:     apiURL,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	return &TelegramAnnouncer{
		bot:     bot,
		chat:    telebot.ChatID(chatID),
		kioskID: kioskID,
	}, nil
}

// Announce sends one message per dispensed payment.
func (a *TelegramAnnouncer) Announce(_ context.Context, event flow.DispenseEvent) error {
	_, err := a.bot.Send(a.chat, FormatAnnouncement(a.kioskID, event))
	return err
}

// FormatAnnouncement renders the operator notice for event.
func FormatAnnouncement(kioskID string, event flow.DispenseEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Kiosk %s dispensed\n", kioskID)
	fmt.Fprintf(&b, "Amount: %s\n", event.Amount)
	fmt.Fprintf(&b, "Chain: %d\n", event.ChainID)
	fmt.Fprintf(&b, "Tx: %s", event.TransactionHash)
	return b.String()
}
