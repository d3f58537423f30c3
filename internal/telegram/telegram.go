// Package telegram hosts the Telegram client, routing, and handlers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_channel_gate_bot/internal/config"
	"tg_channel_gate_bot/internal/domain"
	"tg_channel_gate_bot/internal/feature/registry"
	"tg_channel_gate_bot/internal/logging"
	"tg_channel_gate_bot/internal/store"
)

// botAPI is the subset of *bot.Bot the client uses.
type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
	GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error)
	ExportChatInviteLink(ctx context.Context, params *bot.ExportChatInviteLinkParams) (string, error)
}

type registryService interface {
	IsAdmin(ctx context.Context, userID int64) bool
	GrantAdmin(ctx context.Context, actor, target int64, now time.Time) error
	RevokeAdmin(ctx context.Context, actor, target int64) error
	ListAdmins(ctx context.Context) ([]domain.Administrator, error)
	RegisterRequiredChannel(ctx context.Context, actor int64, channelID, name, link string, now time.Time) (domain.RequiredChannel, error)
	RemoveRequiredChannel(ctx context.Context, actor, id int64) error
	ListRequiredChannels(ctx context.Context) ([]domain.RequiredChannel, error)
	CheckMembership(ctx context.Context, userID int64, lookup registry.MembershipLookup) (registry.MembershipResult, error)
}

type userRegistrar interface {
	EnsureUser(ctx context.Context, profile domain.User) (bool, error)
	DisplayName(ctx context.Context, userID int64) string
}

type statsProvider interface {
	Snapshot(ctx context.Context) (store.Stats, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Option customizes the Client.
type Option func(*Client)

// WithRegistry wires the admin and channel registry used for routing and
// the subscription gate.
func WithRegistry(reg registryService) Option {
	return func(c *Client) {
		c.registry = reg
	}
}

// WithUserRegistrar records every sender in the users store.
func WithUserRegistrar(users userRegistrar) Option {
	return func(c *Client) {
		c.users = users
	}
}

// WithStatsProvider enables the /stats command.
func WithStatsProvider(stats statsProvider) Option {
	return func(c *Client) {
		c.stats = stats
	}
}

// Client wraps the Telegram bot instance and logging dependencies.
type Client struct {
	api      botAPI
	logger   *logrus.Entry
	registry registryService
	users    userRegistrar
	stats    statsProvider
	lookup   registry.MembershipLookup
	now      func() time.Time
}

// NewClient initializes the Telegram bot with long polling and the update
// router.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.handle),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.api = tgBot
	client.lookup = NewChatMemberLookup(tgBot)

	return client, nil
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.api.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func (c *Client) handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	c.handleUpdate(ctx, update)
}

type updateMeta struct {
	userID     int64
	chatID     int64
	chatType   models.ChatType
	text       string
	updateType string
	sender     *models.User
}

func (c *Client) handleUpdate(ctx context.Context, update *models.Update) {
	if update == nil {
		return
	}

	meta := extractUpdateMeta(update)
	logUpdate(c.logger, meta)

	if meta.sender == nil || meta.sender.IsBot {
		return
	}

	c.recordUser(ctx, meta.sender)

	switch {
	case update.CallbackQuery != nil:
		c.handleCallback(ctx, update.CallbackQuery, meta)
	case update.Message != nil:
		if meta.chatType != models.ChatTypePrivate {
			return
		}
		c.handleMessage(ctx, meta)
	}
}

func (c *Client) recordUser(ctx context.Context, from *models.User) {
	if c.users == nil {
		return
	}

	if _, err := c.users.EnsureUser(ctx, domain.User{
		UserID:    from.ID,
		Username:  from.Username,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	}); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "user_register_failed",
			"user_id": from.ID,
		}).WithError(err).Warn("failed to record user")
	}
}

func logUpdate(logger *logrus.Entry, meta updateMeta) {
	fields := logging.Fields{
		"event":       "telegram_update",
		"update_type": meta.updateType,
	}

	if meta.text != "" {
		fields["text"] = meta.text
	}
	if meta.userID != 0 {
		fields["user_id"] = meta.userID
	}
	if meta.chatID != 0 {
		fields["chat_id"] = meta.chatID
	}

	logger.WithFields(fields).Info("telegram update received")
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			chatType:   update.Message.Chat.Type,
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
			sender:     update.Message.From,
		}
	case update.EditedMessage != nil:
		return updateMeta{
			userID:     userID(update.EditedMessage.From),
			chatID:     chatID(&update.EditedMessage.Chat),
			chatType:   update.EditedMessage.Chat.Type,
			text:       strings.TrimSpace(update.EditedMessage.Text),
			updateType: "edited_message",
			sender:     update.EditedMessage.From,
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     messageChatID(update.CallbackQuery.Message),
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			updateType: "callback_query",
			sender:     &update.CallbackQuery.From,
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return chatID(&msg.Message.Chat)
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return chatID(&msg.InaccessibleMessage.Chat)
	default:
		return 0
	}
}
