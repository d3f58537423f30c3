package registry

import (
	"context"
	"sort"
	"sync"

	"tg_channel_gate_bot/internal/domain"
)

// memoryStore is an in-memory admin and channel store with the same
// insert-if-absent semantics as the real backends.
type memoryStore struct {
	mu       sync.Mutex
	admins   map[int64]domain.Administrator
	channels []domain.RequiredChannel
	nextID   int64

	existsErr      error
	adminListErr   error
	channelListErr error
	insertErr      error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{admins: make(map[int64]domain.Administrator)}
}

type adminView struct{ *memoryStore }

type channelView struct{ *memoryStore }

func (s *memoryStore) adminStore() adminView { return adminView{s} }

func (s *memoryStore) channelStore() channelView { return channelView{s} }

func (a adminView) InsertIfAbsent(_ context.Context, admin domain.Administrator) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.insertErr != nil {
		return false, a.insertErr
	}
	if _, ok := a.admins[admin.UserID]; ok {
		return false, nil
	}
	a.admins[admin.UserID] = admin
	return true, nil
}

func (a adminView) Exists(_ context.Context, userID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.existsErr != nil {
		return false, a.existsErr
	}
	_, ok := a.admins[userID]
	return ok, nil
}

func (a adminView) Get(_ context.Context, userID int64) (domain.Administrator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	admin, ok := a.admins[userID]
	if !ok {
		return domain.Administrator{}, domain.ErrNotFound
	}
	return admin, nil
}

func (a adminView) List(_ context.Context) ([]domain.Administrator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.adminListErr != nil {
		return nil, a.adminListErr
	}

	out := make([]domain.Administrator, 0, len(a.admins))
	for _, admin := range a.admins {
		out = append(out, admin)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (a adminView) Delete(_ context.Context, userID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.admins[userID]; !ok {
		return false, nil
	}
	delete(a.admins, userID)
	return true, nil
}

func (c channelView) InsertIfAbsent(_ context.Context, channel domain.RequiredChannel) (domain.RequiredChannel, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.insertErr != nil {
		return domain.RequiredChannel{}, false, c.insertErr
	}
	for _, existing := range c.channels {
		if existing.ChannelID == channel.ChannelID {
			return existing, false, nil
		}
	}

	c.nextID++
	channel.ID = c.nextID
	c.channels = append(c.channels, channel)
	return channel, true, nil
}

func (c channelView) List(_ context.Context) ([]domain.RequiredChannel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channelListErr != nil {
		return nil, c.channelListErr
	}
	return append([]domain.RequiredChannel(nil), c.channels...), nil
}

func (c channelView) Delete(_ context.Context, id int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, channel := range c.channels {
		if channel.ID == id {
			c.channels = append(c.channels[:i], c.channels[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
