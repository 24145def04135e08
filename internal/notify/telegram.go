package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"warehub/internal/config"
	"warehub/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts booking events to the staff chat.
type TelegramNotifier struct {
	bot    messageSender
	chatID int64
}

func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID}, nil
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Deliver(ctx context.Context, event *events.Event) error {
	text, ok := FormatEvent(event)
	if !ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	_, err := n.bot.Send(msg)
	return err
}

// FormatEvent renders the staff chat line for an event. Unknown event types
// are not rendered.
func FormatEvent(event *events.Event) (string, bool) {
	switch event.Type {
	case events.EventBookingCreated, events.EventBookingStatusChanged,
		events.EventBookingRepriced, events.EventBookingDateProposed:
		var p events.BookingEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", false
		}
		return formatBooking(event.Type, p), true
	case events.EventApprovalRequested, events.EventApprovalResponded:
		var p events.ApprovalEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", false
		}
		return formatApproval(event.Type, p), true
	default:
		return "", false
	}
}

func formatBooking(eventType string, p events.BookingEventPayload) string {
	var sb strings.Builder
	switch eventType {
	case events.EventBookingCreated:
		fmt.Fprintf(&sb, "🆕 Booking #%d created for %s\n", p.BookingID, customerLabel(p))
	case events.EventBookingRepriced:
		fmt.Fprintf(&sb, "💲 Booking #%d repriced\n", p.BookingID)
	case events.EventBookingDateProposed:
		fmt.Fprintf(&sb, "📅 Booking #%d: %s\n", p.BookingID, p.Action)
	default:
		fmt.Fprintf(&sb, "🔄 Booking #%d: %s -> %s\n", p.BookingID, p.PreviousStatus, p.Status)
	}

	fmt.Fprintf(&sb, "Warehouse: %d, type: %s\n", p.WarehouseID, p.BookingType)
	fmt.Fprintf(&sb, "Start: %s, total: %s", p.StartDate.Format("2006-01-02"), p.TotalAmount)
	if p.ProposedDate != nil {
		fmt.Fprintf(&sb, "\nProposed date: %s", p.ProposedDate.Format("2006-01-02"))
	}
	if p.ScheduledDropoff != nil {
		fmt.Fprintf(&sb, "\nDrop-off: %s", p.ScheduledDropoff.Format("2006-01-02 15:04 MST"))
	}
	if p.Reason != "" {
		fmt.Fprintf(&sb, "\nReason: %s", p.Reason)
	}
	return sb.String()
}

func formatApproval(eventType string, p events.ApprovalEventPayload) string {
	if eventType == events.EventApprovalRequested {
		text := fmt.Sprintf("✋ Approval #%d requested for booking #%d (user %d asks user %d)", p.ApprovalID, p.BookingID, p.RequesterID, p.ApproverID)
		if p.Message != "" {
			text += "\nMessage: " + p.Message
		}
		return text
	}

	icon := "✅"
	if p.Status != "approved" {
		icon = "❌"
	}
	text := fmt.Sprintf("%s Approval #%d for booking #%d: %s", icon, p.ApprovalID, p.BookingID, p.Status)
	if p.Note != "" {
		text += "\nNote: " + p.Note
	}
	return text
}

func customerLabel(p events.BookingEventPayload) string {
	if p.CustomerName != "" {
		return fmt.Sprintf("%s (%d)", p.CustomerName, p.CustomerID)
	}
	return fmt.Sprintf("customer %d", p.CustomerID)
}
