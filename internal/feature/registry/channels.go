package registry

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"tg_channel_gate_bot/internal/domain"
	"tg_channel_gate_bot/internal/logging"
)

// RegisterRequiredChannel adds a channel users must join. Registering a
// channel_id that is already present returns the stored record unchanged.
func (r *Registry) RegisterRequiredChannel(ctx context.Context, actor int64, channelID, name, link string, now time.Time) (domain.RequiredChannel, error) {
	if err := r.ready(ctx); err != nil {
		return domain.RequiredChannel{}, err
	}
	if err := r.authorize(ctx, actor); err != nil {
		return domain.RequiredChannel{}, err
	}

	channelID = strings.TrimSpace(channelID)
	name = strings.TrimSpace(name)
	link = strings.TrimSpace(link)

	switch {
	case channelID == "":
		return domain.RequiredChannel{}, fmt.Errorf("channel id is required: %w", domain.ErrInvalidArgument)
	case name == "":
		return domain.RequiredChannel{}, fmt.Errorf("channel name is required: %w", domain.ErrInvalidArgument)
	case link == "":
		return domain.RequiredChannel{}, fmt.Errorf("channel link is required: %w", domain.ErrInvalidArgument)
	}

	channel, inserted, err := r.channels.InsertIfAbsent(ctx, domain.RequiredChannel{
		ChannelID:   channelID,
		ChannelName: name,
		ChannelLink: link,
		AddedBy:     actor,
		AddedAt:     stamp(now),
	})
	if err != nil {
		return domain.RequiredChannel{}, fmt.Errorf("register channel: %w", err)
	}

	entry := r.logger.WithFields(logging.Fields{
		"event":      "channel_registered",
		"actor_id":   actor,
		"channel_id": channel.ChannelID,
		"id":         channel.ID,
	})
	if !inserted {
		entry.WithField("event", "channel_already_registered").Info("required channel already registered")
	} else {
		entry.Info("registered required channel")
	}

	return channel, nil
}

// RemoveRequiredChannel deletes the channel with the given registry id.
func (r *Registry) RemoveRequiredChannel(ctx context.Context, actor, id int64) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	if err := r.authorize(ctx, actor); err != nil {
		return err
	}

	deleted, err := r.channels.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("remove channel: %w", err)
	}
	if !deleted {
		return fmt.Errorf("required channel %d: %w", id, domain.ErrNotFound)
	}

	r.logger.WithFields(logging.Fields{
		"event":    "channel_removed",
		"actor_id": actor,
		"id":       id,
	}).Info("removed required channel")

	return nil
}

// ListRequiredChannels returns channels in registration order.
func (r *Registry) ListRequiredChannels(ctx context.Context) ([]domain.RequiredChannel, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}

	channels, err := r.channels.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	return channels, nil
}

var (
	publicLinkPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.)?(?:t|telegram)\.me/([A-Za-z0-9_]+)(?:/.*)?$`)
	usernamePattern   = regexp.MustCompile(`^@[A-Za-z0-9_]+$`)
	numericPattern    = regexp.MustCompile(`^-?[0-9]+$`)
)

// NormalizeChannelRef converts the forms admins paste into a chat identifier
// the Bot API accepts: "@name", a "-100" prefixed numeric id, or a public
// t.me link. Private invite links do not identify a chat and are rejected.
func NormalizeChannelRef(input string) (string, error) {
	ref := strings.TrimSpace(input)
	if ref == "" {
		return "", fmt.Errorf("channel reference is required: %w", domain.ErrInvalidArgument)
	}

	lower := strings.ToLower(ref)
	if strings.Contains(lower, "t.me/+") || strings.Contains(lower, "t.me/joinchat/") {
		return "", fmt.Errorf("invite link %q does not identify a channel: %w", ref, domain.ErrInvalidArgument)
	}

	switch {
	case strings.HasPrefix(ref, "@"):
		if !usernamePattern.MatchString(ref) {
			return "", fmt.Errorf("channel username %q: %w", ref, domain.ErrInvalidArgument)
		}
		return ref, nil
	case numericPattern.MatchString(ref):
		if strings.HasPrefix(ref, "-100") {
			return ref, nil
		}
		if strings.HasPrefix(ref, "-") {
			return "", fmt.Errorf("channel id %q: %w", ref, domain.ErrInvalidArgument)
		}
		return "-100" + ref, nil
	}

	if match := publicLinkPattern.FindStringSubmatch(ref); match != nil {
		return "@" + match[1], nil
	}

	return "", fmt.Errorf("unrecognized channel reference %q: %w", ref, domain.ErrInvalidArgument)
}
