package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/tradevault/internal/models"
)

// Notification channels.
const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

// DeliveryResult is the per-channel outcome of a dispatch.
type DeliveryResult struct {
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// NotificationDispatcher is the best-effort delivery port for confirmation
// messages. A delivery failure never blocks or reverses a confirmation.
type NotificationDispatcher interface {
	// Send delivers the confirmation message on every channel required
	// for the payment and offer. It returns per-channel results and
	// whether all required channels were delivered.
	Send(ctx context.Context, payment *models.PendingPayment, offer *models.Offer) ([]DeliveryResult, bool)
}

// NotifierConfig holds delivery endpoints and credentials.
type NotifierConfig struct {
	TelegramBotToken  string
	TelegramAdminChat string
	MailAPIURL        string
	MailAPIKey        string
	MailFrom          string
	MaxAttempts       int
}

// Notifier sends email (always) and Telegram (when a handle is recorded
// and the offer carries channel access) confirmation messages over HTTP.
type Notifier struct {
	cfg    NotifierConfig
	client *resty.Client
}

// NewNotifier constructs Notifier.
func NewNotifier(cfg NotifierConfig) *Notifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Notifier{
		cfg:    cfg,
		client: resty.New().SetTimeout(15 * time.Second),
	}
}

// Send dispatches on each required channel with bounded retry per channel.
func (n *Notifier) Send(ctx context.Context, payment *models.PendingPayment, offer *models.Offer) ([]DeliveryResult, bool) {
	results := make([]DeliveryResult, 0, 2)
	allDelivered := true

	emailResult := n.deliver(ctx, ChannelEmail, func() error {
		return n.sendEmail(ctx, payment, offer)
	})
	results = append(results, emailResult)
	allDelivered = allDelivered && emailResult.Delivered

	if payment.TelegramHandle != "" && offer != nil && offer.GrantsChannelAccess() {
		tgResult := n.deliver(ctx, ChannelTelegram, func() error {
			return n.sendTelegram(ctx, payment, offer)
		})
		results = append(results, tgResult)
		allDelivered = allDelivered && tgResult.Delivered
	}

	// Back-office heads-up is fire-and-forget; it never affects the
	// delivery outcome.
	if err := n.notifyAdminChat(ctx, payment, offer); err != nil {
		log.Printf("[Notifier] admin chat notification failed: %v", err)
	}

	return results, allDelivered
}

// deliver runs send with bounded backoff. After the attempts are exhausted
// the failure is recorded and left for manual follow-up.
func (n *Notifier) deliver(ctx context.Context, channel string, send func() error) DeliveryResult {
	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		if err := send(); err != nil {
			lastErr = err
			log.Printf("[Notifier] %s delivery attempt %d/%d failed: %v", channel, attempt, n.cfg.MaxAttempts, err)
			select {
			case <-ctx.Done():
				return DeliveryResult{Channel: channel, Error: ctx.Err().Error()}
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}
		return DeliveryResult{Channel: channel, Delivered: true}
	}

	return DeliveryResult{Channel: channel, Error: lastErr.Error()}
}

type mailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (n *Notifier) sendEmail(ctx context.Context, payment *models.PendingPayment, offer *models.Offer) error {
	if n.cfg.MailAPIURL == "" {
		log.Println("[Notifier] mail API not configured")
		return nil
	}
	if payment.UserEmail == "" {
		return fmt.Errorf("no email on record for payment %s", payment.ID)
	}

	offerName := "your purchase"
	if offer != nil {
		offerName = offer.Name
	}

	body := mailRequest{
		From:    n.cfg.MailFrom,
		To:      payment.UserEmail,
		Subject: "Payment confirmed",
		Text: fmt.Sprintf("Your payment of %s for %s has been confirmed. Your access is now active.",
			FormatAmount(payment.Amount, payment.Currency), offerName),
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+n.cfg.MailAPIKey).
		SetBody(body).
		Post(n.cfg.MailAPIURL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("mail API returned status %d", resp.StatusCode())
	}
	return nil
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (n *Notifier) sendTelegramMessage(ctx context.Context, chatID, text string) error {
	if n.cfg.TelegramBotToken == "" {
		log.Println("[Notifier] Telegram bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.cfg.TelegramBotToken)
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(telegramMessage{ChatID: chatID, Text: text, ParseMode: "HTML"}).
		Post(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode())
	}
	return nil
}

func (n *Notifier) sendTelegram(ctx context.Context, payment *models.PendingPayment, offer *models.Offer) error {
	message := fmt.Sprintf(`<b>✅ Payment confirmed</b>
<b>Offer:</b> %s
<b>Amount:</b> %s
Your channel access is active. Welcome aboard!`,
		offer.Name,
		FormatAmount(payment.Amount, payment.Currency),
	)
	return n.sendTelegramMessage(ctx, "@"+strings.TrimPrefix(payment.TelegramHandle, "@"), strings.TrimSpace(message))
}

func (n *Notifier) notifyAdminChat(ctx context.Context, payment *models.PendingPayment, offer *models.Offer) error {
	if n.cfg.TelegramAdminChat == "" {
		return nil
	}

	offerName := ""
	if offer != nil {
		offerName = offer.Name
	}

	message := fmt.Sprintf(`<b>✅ PAYMENT CONFIRMED</b>
<b>Case:</b> %s
<b>Offer:</b> %s
<b>Amount:</b> %s
<b>Reference:</b> %s
━━━━━━━━━━━━━━━━━━`,
		payment.ID,
		offerName,
		FormatAmount(payment.Amount, payment.Currency),
		payment.TransactionReference,
	)

	return n.sendTelegramMessage(ctx, n.cfg.TelegramAdminChat, strings.TrimSpace(message))
}

// FormatAmount formats an amount with two decimals and its currency code.
func FormatAmount(amount float64, currency string) string {
	if currency == "" {
		currency = "EUR"
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}
