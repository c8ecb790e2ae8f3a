package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"wbcalc/internal/calculator"
	"wbcalc/internal/catalog"
	"wbcalc/internal/config"
	"wbcalc/internal/settings"
)

// API is the part of tgbotapi.BotAPI the bot talks through.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Calculator interface {
	Calculate(ctx context.Context, req calculator.Request) (*calculator.Result, error)
	Get(ctx context.Context, id string) (*calculator.Result, error)
}

type Catalog interface {
	ListWarehouses(ctx context.Context) ([]catalog.Warehouse, error)
	ListCommissions(ctx context.Context) ([]catalog.CategoryCommission, error)
}

// Storage is implemented by storage.PostgresStorage.
type Storage interface {
	ListCalculations(ctx context.Context, userID int64, limit int) ([]calculator.Result, error)
	CheckRateLimit(ctx context.Context, userID int64, action string, limit int64, window time.Duration) (bool, error)
	InvalidateCatalogCache(ctx context.Context) error
}

type Exporter func(dir string, res *calculator.Result) (string, error)

type Deps struct {
	Calculator Calculator
	Catalog    Catalog
	Storage    Storage
	Settings   *settings.Store
	State      StateStore
	Export     Exporter
}

type Bot struct {
	bot      API
	logger   *zap.Logger
	state    *StateStorage
	calc     Calculator
	catalog  Catalog
	storage  Storage
	settings *settings.Store
	export   Exporter
	cfg      *config.Config
	mu       sync.Mutex
	handlers map[string]func(context.Context, int64, string)
}

func New(token string, deps Deps, logger *zap.Logger, cfg *config.Config) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	botAPI.Debug = cfg.Telegram.Debug

	logger.Info("Bot authorized",
		zap.String("username", botAPI.Self.UserName),
		zap.Int64("id", botAPI.Self.ID))

	return NewWithAPI(botAPI, deps, logger, cfg), nil
}

func NewWithAPI(api API, deps Deps, logger *zap.Logger, cfg *config.Config) *Bot {
	b := &Bot{
		bot:      api,
		logger:   logger,
		state:    NewStateStorage(deps.State),
		calc:     deps.Calculator,
		catalog:  deps.Catalog,
		storage:  deps.Storage,
		settings: deps.Settings,
		export:   deps.Export,
		cfg:      cfg,
	}

	b.registerHandlers()
	return b
}

func (b *Bot) registerHandlers() {
	b.handlers = map[string]func(context.Context, int64, string){
		StepDimensions:      b.handleDimensions,
		StepManualLogistics: b.handleManualLogistics,
		StepWarehouse:       b.handleWarehouseText,
		StepCategory:        b.handleCategory,
		StepCOGS:            b.handleCOGS,
		StepReverse:         b.handleReverse,
		StepRates:           b.handleRates,
	}
}

func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)
	defer b.bot.StopReceivingUpdates()

	b.notifyAdmins("✅ Калькулятор запущен")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Shutting down bot")
			return nil

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.mu.Lock()
			if update.Message != nil {
				b.processMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				b.processCallback(ctx, update.CallbackQuery)
			}
			b.mu.Unlock()
		}
	}
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	b.logger.Debug("Processing message",
		zap.Int64("chat_id", chatID),
		zap.String("text", msg.Text))

	if msg.IsCommand() {
		b.handleCommand(ctx, chatID, msg.Command(), msg.CommandArguments())
		return
	}

	state, err := b.state.Get(ctx, chatID)
	if err != nil {
		b.logger.Error("Failed to get user state",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		b.sendError(chatID, "Ошибка при обработке запроса")
		return
	}

	if handler, exists := b.handlers[state.Step]; exists {
		handler(ctx, chatID, msg.Text)
	} else {
		b.handleDefault(ctx, chatID)
	}
}

func (b *Bot) processCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	data := callback.Data

	b.logger.Debug("Processing callback",
		zap.Int64("chat_id", chatID),
		zap.String("data", data))

	if _, err := b.bot.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err))
	}

	kind, value, err := parseCallback(data)
	if err != nil {
		b.sendError(chatID, "Кнопка устарела, начните заново: /calc")
		return
	}

	switch kind {
	case callbackWarehouse:
		b.handleWarehouseSelected(ctx, chatID, value)
	case callbackCategory:
		b.handleCategorySelected(ctx, chatID, value)
	case callbackExcel:
		b.handleExcelExport(ctx, chatID, value)
	}
}

func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) {
	if _, err := b.bot.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Int64("chat_id", msg.ChatID),
			zap.String("text", msg.Text),
			zap.Error(err))
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendError(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "❌ "+text)
	b.sendMessage(msg)
}

func (b *Bot) isAdmin(chatID int64) bool {
	return b.cfg.IsAdmin(chatID)
}
