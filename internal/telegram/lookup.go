package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type chatMemberGetter interface {
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
}

// ChatMemberLookup answers membership questions with getChatMember. The bot
// must be an administrator of each required channel for the call to succeed.
type ChatMemberLookup struct {
	api chatMemberGetter
}

// NewChatMemberLookup constructs a ChatMemberLookup.
func NewChatMemberLookup(api chatMemberGetter) *ChatMemberLookup {
	return &ChatMemberLookup{api: api}
}

// IsMember reports whether userID is an owner, administrator, member, or a
// restricted user who is still in the chat.
func (l *ChatMemberLookup) IsMember(ctx context.Context, channelID string, userID int64) (bool, error) {
	if l == nil || l.api == nil {
		return false, errors.New("chat member lookup is not initialized")
	}

	member, err := l.api.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: chatRef(channelID),
		UserID: userID,
	})
	if err != nil {
		return false, fmt.Errorf("get chat member %s: %w", channelID, err)
	}
	if member == nil {
		return false, fmt.Errorf("get chat member %s: empty response", channelID)
	}

	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true, nil
	case models.ChatMemberTypeRestricted:
		return member.Restricted != nil && member.Restricted.IsMember, nil
	default:
		return false, nil
	}
}

// chatRef converts a stored channel id to the form the Bot API expects:
// numeric ids as int64, usernames as "@name".
func chatRef(channelID string) any {
	channelID = strings.TrimSpace(channelID)
	if id, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		return id
	}

	return channelID
}
