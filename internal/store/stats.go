package store

import (
	"context"
	"errors"
	"fmt"
)

type counter interface {
	Count(ctx context.Context) (int64, error)
}

// Stats is a point-in-time snapshot of registry sizes.
type Stats struct {
	Users    int64
	Admins   int64
	Channels int64
}

// StatsProvider exposes collection counts for the /stats command without
// leaking the storage backend to callers.
type StatsProvider struct {
	users    counter
	admins   counter
	channels counter
}

// NewStatsProvider constructs a StatsProvider backed by the provided
// repositories.
func NewStatsProvider(users, admins, channels counter) *StatsProvider {
	return &StatsProvider{
		users:    users,
		admins:   admins,
		channels: channels,
	}
}

// Snapshot counts users, admins and required channels. The first failing
// count aborts the snapshot.
func (p *StatsProvider) Snapshot(ctx context.Context) (Stats, error) {
	if ctx == nil {
		return Stats{}, errors.New("context is required")
	}
	if p == nil || p.users == nil || p.admins == nil || p.channels == nil {
		return Stats{}, errors.New("stats provider is not initialized")
	}

	var stats Stats
	var err error

	if stats.Users, err = p.users.Count(ctx); err != nil {
		return Stats{}, fmt.Errorf("count users: %w", err)
	}
	if stats.Admins, err = p.admins.Count(ctx); err != nil {
		return Stats{}, fmt.Errorf("count admins: %w", err)
	}
	if stats.Channels, err = p.channels.Count(ctx); err != nil {
		return Stats{}, fmt.Errorf("count required channels: %w", err)
	}

	return stats, nil
}
