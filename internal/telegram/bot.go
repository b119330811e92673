package telegram

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"ai-nutritionist/internal/config"
	"ai-nutritionist/internal/metrics"
	"ai-nutritionist/internal/plan"
	"ai-nutritionist/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UsageReporter is the slice of the metrics store the /metrics command uses.
type UsageReporter interface {
	RecentUsage(days int) ([]metrics.DailyUsage, error)
}

// Bot wraps the Telegram API and drives one planning session per chat user.
// Access is gated by the configured allow list instead of the web login.
type Bot struct {
	api   *tgbotapi.BotAPI
	ctrl  *session.Controller
	usage UsageReporter
	cfg   *config.Config

	mu       sync.Mutex
	sessions map[int64]*session.Session
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, ctrl *session.Controller, usage UsageReporter) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	wh, _ := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.Telegram.WebhookURL, err)
	}
	log.Printf("Webhook set response: %s", resp.Description)

	return &Bot{
		api:      bot,
		ctrl:     ctrl,
		usage:    usage,
		cfg:      cfg,
		sessions: make(map[int64]*session.Session),
	}, nil
}

// RegisterHandlers registers the webhook handler with the default HTTP mux.
func (b *Bot) RegisterHandlers() {
	http.HandleFunc("/webhook", b.handleWebhook)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		log.Printf("Error parsing update: %v", err)
		return
	}

	if update.CallbackQuery != nil {
		if b.isAllowed(update.CallbackQuery.From.ID) {
			b.handleCallbackQuery(update.CallbackQuery)
		}
		return
	}

	if update.Message == nil {
		return
	}

	if !b.isAllowed(update.Message.From.ID) {
		log.Printf("⚠️ Unauthorized access attempt from UserID: %d (@%s)", update.Message.From.ID, update.Message.From.UserName)
		return
	}

	go b.processMessage(update.Message)
}

func (b *Bot) isAllowed(userID int64) bool {
	for _, id := range b.cfg.Telegram.AllowedUserIDs {
		if userID == id {
			return true
		}
	}
	return false
}

// sessionFor returns the planning session bound to the Telegram user, creating
// and authenticating one on first contact.
func (b *Bot) sessionFor(user *tgbotapi.User) *session.Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sessions[user.ID]; ok {
		return s
	}

	username := user.UserName
	if username == "" {
		username = fmt.Sprintf("telegram-%d", user.ID)
	}

	s := session.New(fmt.Sprintf("tg-%d", user.ID))
	b.ctrl.AttachUser(s, username)
	b.sessions[user.ID] = s
	return s
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	switch {
	case msg.Text == "/start" || msg.Text == "/help":
		b.sendHelp(msg.Chat.ID)
	case msg.Text == "/history":
		b.handleHistoryRequest(msg)
	case msg.Text == "/metrics":
		b.handleMetricsRequest(msg)
	default:
		b.handlePlanRequest(msg)
	}
}

func (b *Bot) sendHelp(chatID int64) {
	text := "🥗 *AI Nutritionist*\n\n" +
		"Send me your dietary preferences and I'll generate a daily meal plan.\n\n" +
		"Format: `gluten-free, dairy-free: any extra notes`\n" +
		"Both parts are optional — plain text becomes extra notes.\n\n" +
		"Commands:\n" +
		"• /history — your saved plans\n" +
		"• /metrics — recent generation usage"
	reply := tgbotapi.NewMessage(chatID, text)
	reply.ParseMode = "Markdown"
	b.api.Send(reply)
}

func (b *Bot) handlePlanRequest(msg *tgbotapi.Message) {
	statusText := "🧑‍🍳 *Thinking...* \n(Generating your meal plan)"
	replyMsg := tgbotapi.NewMessage(msg.Chat.ID, statusText)
	replyMsg.ParseMode = "Markdown"
	sentMsg, err := b.api.Send(replyMsg)
	if err != nil {
		log.Printf("Failed to send initial reply: %v", err)
		return
	}

	s := b.sessionFor(msg.From)
	b.ctrl.GoTo(s, session.ViewMealPlanner)

	prefs := parsePreferences(msg.Text)
	log.Printf("Generating plan for %s (restrictions: %s)", s.Username, prefs.RestrictionsLabel())

	if err := b.ctrl.SubmitPreferences(context.Background(), s, prefs); err != nil {
		log.Printf("Error submitting preferences: %v", err)
		edit := tgbotapi.NewEditMessageText(msg.Chat.ID, sentMsg.MessageID, "❌ Something went wrong, try again.")
		b.api.Send(edit)
		return
	}

	edit := tgbotapi.NewEditMessageText(msg.Chat.ID, sentMsg.MessageID, s.Current.MealPlan)
	edit.ParseMode = "Markdown"
	if !s.Current.Failed {
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("💾 Save this plan", "save"),
			),
		)
		edit.ReplyMarkup = &keyboard
	}
	if _, err := b.api.Send(edit); err != nil {
		// Model output is not always valid Telegram markdown. Retry plain.
		log.Printf("Markdown send failed, retrying as plain text: %v", err)
		plainEdit := tgbotapi.NewEditMessageText(msg.Chat.ID, sentMsg.MessageID, s.Current.MealPlan)
		plainEdit.ReplyMarkup = edit.ReplyMarkup
		b.api.Send(plainEdit)
	}
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	if query.Data != "save" {
		return
	}

	b.api.Request(tgbotapi.NewCallback(query.ID, ""))

	s := b.sessionFor(query.From)
	id, err := b.ctrl.SaveCurrentPlan(s)
	if err != nil {
		log.Printf("Error saving plan for %s: %v", s.Username, err)
		b.api.Send(tgbotapi.NewMessage(query.Message.Chat.ID, "❌ Could not save the plan."))
		return
	}

	confirm := tgbotapi.NewMessage(query.Message.Chat.ID, fmt.Sprintf("✅ *Plan saved!*\nID: `%s`", id))
	confirm.ParseMode = "Markdown"
	b.api.Send(confirm)
}

func (b *Bot) handleHistoryRequest(msg *tgbotapi.Message) {
	s := b.sessionFor(msg.From)

	reply := tgbotapi.NewMessage(msg.Chat.ID, formatHistory(s.UserHistory()))
	reply.ParseMode = "Markdown"
	b.api.Send(reply)
}

func (b *Bot) handleMetricsRequest(msg *tgbotapi.Message) {
	if b.usage == nil {
		b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, "Metrics are not enabled."))
		return
	}

	usage, err := b.usage.RecentUsage(7)
	if err != nil {
		log.Printf("Error fetching metrics: %v", err)
		b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, "❌ Error fetching metrics."))
		return
	}

	var sb strings.Builder
	sb.WriteString("📊 *Recent Generation Usage*\n\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d tokens (%d calls)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalCalls))
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, sb.String())
	reply.ParseMode = "Markdown"
	b.api.Send(reply)
}

func formatHistory(entries []session.HistoryEntry) string {
	if len(entries) == 0 {
		return "You haven't saved any meal plans yet."
	}

	var sb strings.Builder
	sb.WriteString("🗓 *Your Saved Plans*\n\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("• *%s* — %s\n", e.Record.Timestamp, e.Record.Preferences.RestrictionsLabel()))
		if e.Record.Preferences.AdditionalInfo != "" {
			sb.WriteString(fmt.Sprintf("  _%s_\n", e.Record.Preferences.AdditionalInfo))
		}
	}
	return sb.String()
}

// parsePreferences reads a free-form preference message. A leading
// "gluten-free, dairy-free" segment (optionally followed by ": notes") toggles
// the restriction flags; anything unrecognized is treated as notes wholesale.
func parsePreferences(text string) plan.Preferences {
	text = strings.TrimSpace(text)

	head, info, cut := strings.Cut(text, ":")
	if !cut {
		head, info = text, ""
	}

	prefs, ok := parseMarkers(head)
	if !ok {
		return plan.Preferences{AdditionalInfo: text}
	}
	prefs.AdditionalInfo = strings.TrimSpace(info)
	return prefs
}

// parseMarkers accepts the head segment only when every comma-separated token
// is a known restriction marker.
func parseMarkers(head string) (plan.Preferences, bool) {
	var prefs plan.Preferences

	tokens := strings.Split(head, ",")
	for _, tok := range tokens {
		switch strings.ToLower(strings.TrimSpace(tok)) {
		case "gluten-free", "gluten free":
			prefs.GlutenFree = true
		case "dairy-free", "dairy free":
			prefs.DairyFree = true
		case "none", "":
		default:
			return plan.Preferences{}, false
		}
	}
	return prefs, true
}
