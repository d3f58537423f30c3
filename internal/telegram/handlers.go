package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tg_channel_gate_bot/internal/domain"
	"tg_channel_gate_bot/internal/feature/registry"
	"tg_channel_gate_bot/internal/logging"
)

const (
	callbackCheckSubscription = "check_subscription"

	msgAdminOnly        = "This command is for administrators only."
	msgUnavailable      = "The service is temporarily unavailable. Please try again later."
	msgFailed           = "Something went wrong. Please try again later."
	msgWelcome          = "Welcome! You have access to the bot."
	msgJoinChannels     = "To use this bot, please join the following channels and then press \"Check\":"
	msgNotJoinedYet     = "You have not joined all required channels yet."
	msgSubscriptionDone = "Thank you for subscribing!"
	msgUnknownCommand   = "Unknown command. Send /help for the list of commands."
)

type commandHandler func(c *Client, ctx context.Context, actor, chat int64, args string)

// adminCommands are gated by IsAdmin; everything else is gated by membership.
var adminCommands = map[string]commandHandler{
	"admin":         (*Client).cmdAdminHelp,
	"admins":        (*Client).cmdListAdmins,
	"addadmin":      (*Client).cmdAddAdmin,
	"removeadmin":   (*Client).cmdRemoveAdmin,
	"channels":      (*Client).cmdListChannels,
	"addchannel":    (*Client).cmdAddChannel,
	"removechannel": (*Client).cmdRemoveChannel,
	"stats":         (*Client).cmdStats,
}

func (c *Client) handleMessage(ctx context.Context, meta updateMeta) {
	if c.registry == nil {
		return
	}

	command, args := parseCommand(meta.text)
	isAdmin := c.registry.IsAdmin(ctx, meta.userID)

	if handler, ok := adminCommands[command]; ok {
		if !isAdmin {
			c.reply(ctx, meta.chatID, msgAdminOnly)
			return
		}

		logging.WithContext(logging.Context{
			ActorID: meta.userID,
			ChatID:  meta.chatID,
			Event:   "admin_command",
		}).WithField("command", command).Info("handling admin command")

		handler(c, ctx, meta.userID, meta.chatID, args)
		return
	}

	if !isAdmin && !c.gate(ctx, meta.userID, meta.chatID) {
		return
	}

	switch command {
	case "start":
		c.reply(ctx, meta.chatID, msgWelcome)
	case "help":
		c.reply(ctx, meta.chatID, helpText(isAdmin))
	case "":
	default:
		c.reply(ctx, meta.chatID, msgUnknownCommand)
	}
}

// gate reports whether the user has joined every required channel, sending
// the join prompt when they have not.
func (c *Client) gate(ctx context.Context, user, chat int64) bool {
	result, err := c.registry.CheckMembership(ctx, user, c.lookup)
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "membership_check_failed",
			"user_id": user,
		}).WithError(err).Error("failed to check membership")
		c.reply(ctx, chat, msgUnavailable)
		return false
	}
	if result.Satisfied {
		return true
	}

	c.sendJoinPrompt(ctx, chat, result.Missing)
	return false
}

func (c *Client) handleCallback(ctx context.Context, query *models.CallbackQuery, meta updateMeta) {
	if c.registry == nil {
		return
	}

	if query.Data != callbackCheckSubscription {
		c.answerCallback(ctx, query.ID, "", false)
		return
	}

	if c.registry.IsAdmin(ctx, meta.userID) {
		c.answerCallback(ctx, query.ID, msgSubscriptionDone, false)
		return
	}

	result, err := c.registry.CheckMembership(ctx, meta.userID, c.lookup)
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "membership_check_failed",
			"user_id": meta.userID,
		}).WithError(err).Error("failed to check membership")
		c.answerCallback(ctx, query.ID, msgUnavailable, true)
		return
	}

	if !result.Satisfied {
		c.answerCallback(ctx, query.ID, msgNotJoinedYet, true)
		if meta.chatID != 0 {
			c.sendJoinPrompt(ctx, meta.chatID, result.Missing)
		}
		return
	}

	c.answerCallback(ctx, query.ID, msgSubscriptionDone, false)
	if meta.chatID != 0 {
		c.reply(ctx, meta.chatID, msgWelcome)
	}
}

func (c *Client) cmdAdminHelp(ctx context.Context, _ int64, chat int64, _ string) {
	c.reply(ctx, chat, helpText(true))
}

func (c *Client) cmdListAdmins(ctx context.Context, _ int64, chat int64, _ string) {
	admins, err := c.registry.ListAdmins(ctx)
	if err != nil {
		c.replyError(ctx, chat, "list_admins", err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Administrators (%d):\n", len(admins))
	for _, admin := range admins {
		fmt.Fprintf(&b, "- %s (%d)", c.displayName(ctx, admin.UserID), admin.UserID)
		if admin.IsBootstrap() {
			b.WriteString(" [bootstrap]")
		}
		fmt.Fprintf(&b, ", added %s\n", admin.AddedAt.UTC().Format("2006-01-02"))
	}

	c.reply(ctx, chat, strings.TrimRight(b.String(), "\n"))
}

func (c *Client) cmdAddAdmin(ctx context.Context, actor, chat int64, args string) {
	target, ok := parseID(args)
	if !ok {
		c.reply(ctx, chat, "Usage: /addadmin <user_id>")
		return
	}

	if err := c.registry.GrantAdmin(ctx, actor, target, c.now()); err != nil {
		c.replyError(ctx, chat, "grant_admin", err)
		return
	}

	c.reply(ctx, chat, fmt.Sprintf("User %d is now an administrator.", target))
}

func (c *Client) cmdRemoveAdmin(ctx context.Context, actor, chat int64, args string) {
	target, ok := parseID(args)
	if !ok {
		c.reply(ctx, chat, "Usage: /removeadmin <user_id>")
		return
	}

	if err := c.registry.RevokeAdmin(ctx, actor, target); err != nil {
		c.replyError(ctx, chat, "revoke_admin", err)
		return
	}

	c.reply(ctx, chat, fmt.Sprintf("User %d is no longer an administrator.", target))
}

func (c *Client) cmdListChannels(ctx context.Context, _ int64, chat int64, _ string) {
	channels, err := c.registry.ListRequiredChannels(ctx)
	if err != nil {
		c.replyError(ctx, chat, "list_channels", err)
		return
	}
	if len(channels) == 0 {
		c.reply(ctx, chat, "No required channels. Add one with /addchannel.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Required channels (%d):\n", len(channels))
	for _, ch := range channels {
		fmt.Fprintf(&b, "#%d %s - %s (%s)\n", ch.ID, ch.ChannelName, ch.ChannelID, ch.ChannelLink)
	}

	c.reply(ctx, chat, strings.TrimRight(b.String(), "\n"))
}

func (c *Client) cmdAddChannel(ctx context.Context, actor, chat int64, args string) {
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if parts[0] == "" || len(parts) == 2 || len(parts) > 3 {
		c.reply(ctx, chat, "Usage: /addchannel <@username|-100id|t.me link> [| <name> | <link>]")
		return
	}

	channelID, err := registry.NormalizeChannelRef(parts[0])
	if err != nil {
		c.replyError(ctx, chat, "add_channel", err)
		return
	}

	var name, link string
	if len(parts) == 3 {
		name, link = parts[1], parts[2]
	} else {
		name, link, err = c.resolveChannel(ctx, channelID)
		if err != nil {
			logging.WithContext(logging.Context{
				ActorID:   actor,
				ChatID:    chat,
				ChannelID: channelID,
				Event:     "channel_resolve_failed",
			}).WithError(err).Warn("failed to resolve channel details")
			c.reply(ctx, chat, "Could not read the channel details. Make sure the bot is an administrator of the channel, or use /addchannel <id> | <name> | <link>.")
			return
		}
	}

	channel, err := c.registry.RegisterRequiredChannel(ctx, actor, channelID, name, link, c.now())
	if err != nil {
		c.replyError(ctx, chat, "add_channel", err)
		return
	}

	c.reply(ctx, chat, fmt.Sprintf("Required channel #%d %s (%s) is registered.", channel.ID, channel.ChannelName, channel.ChannelID))
}

// resolveChannel fills in a channel's title and a joinable link from the Bot
// API when the admin supplied only the channel reference.
func (c *Client) resolveChannel(ctx context.Context, channelID string) (string, string, error) {
	info, err := c.api.GetChat(ctx, &bot.GetChatParams{ChatID: chatRef(channelID)})
	if err != nil {
		return "", "", fmt.Errorf("get chat: %w", err)
	}
	if info == nil {
		return "", "", errors.New("get chat: empty response")
	}

	name := strings.TrimSpace(info.Title)
	if name == "" {
		name = channelID
	}

	if info.Username != "" {
		return name, "https://t.me/" + info.Username, nil
	}

	link, err := c.api.ExportChatInviteLink(ctx, &bot.ExportChatInviteLinkParams{ChatID: info.ID})
	if err != nil {
		return "", "", fmt.Errorf("export invite link: %w", err)
	}

	return name, link, nil
}

func (c *Client) cmdRemoveChannel(ctx context.Context, actor, chat int64, args string) {
	id, ok := parseID(args)
	if !ok {
		c.reply(ctx, chat, "Usage: /removechannel <id> (see /channels)")
		return
	}

	if err := c.registry.RemoveRequiredChannel(ctx, actor, id); err != nil {
		c.replyError(ctx, chat, "remove_channel", err)
		return
	}

	c.reply(ctx, chat, fmt.Sprintf("Required channel #%d removed.", id))
}

func (c *Client) cmdStats(ctx context.Context, _ int64, chat int64, _ string) {
	if c.stats == nil {
		c.reply(ctx, chat, msgUnavailable)
		return
	}

	stats, err := c.stats.Snapshot(ctx)
	if err != nil {
		c.replyError(ctx, chat, "stats", err)
		return
	}

	c.reply(ctx, chat, fmt.Sprintf("Users: %d\nAdministrators: %d\nRequired channels: %d", stats.Users, stats.Admins, stats.Channels))
}

func (c *Client) sendJoinPrompt(ctx context.Context, chat int64, missing []domain.RequiredChannel) {
	rows := make([][]models.InlineKeyboardButton, 0, len(missing)+1)
	for _, ch := range missing {
		rows = append(rows, []models.InlineKeyboardButton{{
			Text: ch.ChannelName,
			URL:  ch.ChannelLink,
		}})
	}
	rows = append(rows, []models.InlineKeyboardButton{{
		Text:         "✅ Check",
		CallbackData: callbackCheckSubscription,
	}})

	c.send(ctx, &bot.SendMessageParams{
		ChatID:      chat,
		Text:        msgJoinChannels,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
}

func (c *Client) reply(ctx context.Context, chat int64, text string) {
	c.send(ctx, &bot.SendMessageParams{
		ChatID: chat,
		Text:   text,
	})
}

func (c *Client) send(ctx context.Context, params *bot.SendMessageParams) {
	if _, err := c.api.SendMessage(ctx, params); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_send_failed",
			"chat_id": params.ChatID,
		}).WithError(err).Warn("failed to send message")
	}
}

func (c *Client) answerCallback(ctx context.Context, id, text string, alert bool) {
	if _, err := c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: id,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil {
		c.logger.WithField("event", "telegram_callback_failed").WithError(err).Warn("failed to answer callback query")
	}
}

// replyError maps registry errors to user-facing text.
func (c *Client) replyError(ctx context.Context, chat int64, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		c.reply(ctx, chat, msgAdminOnly)
	case errors.Is(err, domain.ErrInvalidArgument):
		c.reply(ctx, chat, "Invalid input: "+rootCause(err))
	case errors.Is(err, domain.ErrNotFound):
		c.reply(ctx, chat, "Not found: "+rootCause(err))
	default:
		c.logger.WithFields(logging.Fields{
			"event": "command_failed",
			"op":    op,
		}).WithError(err).Error("admin command failed")
		c.reply(ctx, chat, msgFailed)
	}
}

func (c *Client) displayName(ctx context.Context, id int64) string {
	if c.users == nil {
		return strconv.FormatInt(id, 10)
	}

	return c.users.DisplayName(ctx, id)
}

// rootCause strips the trailing sentinel text from a wrapped domain error.
func rootCause(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx > 0 {
		return msg[:idx]
	}

	return msg
}

// parseCommand splits "/cmd@bot args" into ("cmd", "args"). Non-command text
// yields an empty command.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	head, args, _ := strings.Cut(text, " ")
	head = strings.TrimPrefix(head, "/")
	if at := strings.Index(head, "@"); at >= 0 {
		head = head[:at]
	}

	return strings.ToLower(head), strings.TrimSpace(args)
}

func parseID(args string) (int64, bool) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return 0, false
	}

	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

func helpText(isAdmin bool) string {
	text := "Commands:\n/start - check access\n/help - show this message"
	if !isAdmin {
		return text
	}

	return text + "\n\nAdministrator commands:\n" +
		"/admins - list administrators\n" +
		"/addadmin <user_id> - grant administrator rights\n" +
		"/removeadmin <user_id> - revoke administrator rights\n" +
		"/channels - list required channels\n" +
		"/addchannel <ref> [| <name> | <link>] - add a required channel\n" +
		"/removechannel <id> - remove a required channel\n" +
		"/stats - show usage statistics"
}
