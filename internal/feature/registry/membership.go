package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"tg_channel_gate_bot/internal/domain"
	"tg_channel_gate_bot/internal/logging"
)

// MembershipLookup answers whether userID currently belongs to channelID.
type MembershipLookup interface {
	IsMember(ctx context.Context, channelID string, userID int64) (bool, error)
}

// MembershipLookupFunc adapts a function to MembershipLookup.
type MembershipLookupFunc func(ctx context.Context, channelID string, userID int64) (bool, error)

// IsMember calls f.
func (f MembershipLookupFunc) IsMember(ctx context.Context, channelID string, userID int64) (bool, error) {
	return f(ctx, channelID, userID)
}

// MembershipResult lists the required channels the user has not joined, in
// registration order.
type MembershipResult struct {
	Satisfied bool
	Missing   []domain.RequiredChannel
}

// CheckMembership consults lookup for every required channel. Lookups run
// concurrently, each bounded by the configured timeout; a failed or timed out
// lookup counts the channel as missing. Only a failure to list channels is
// returned as an error.
func (r *Registry) CheckMembership(ctx context.Context, userID int64, lookup MembershipLookup) (MembershipResult, error) {
	if err := r.ready(ctx); err != nil {
		return MembershipResult{}, err
	}
	if lookup == nil {
		return MembershipResult{}, fmt.Errorf("membership lookup is required: %w", domain.ErrInvalidArgument)
	}

	channels, err := r.channels.List(ctx)
	if err != nil {
		return MembershipResult{}, fmt.Errorf("list channels: %w", err)
	}
	if len(channels) == 0 {
		return MembershipResult{Satisfied: true, Missing: []domain.RequiredChannel{}}, nil
	}

	joined := make([]bool, len(channels))

	p := pool.New().WithMaxGoroutines(r.lookupConcurrency)
	for i, channel := range channels {
		p.Go(func() {
			joined[i] = r.lookupOne(ctx, lookup, channel, userID)
		})
	}
	p.Wait()

	missing := make([]domain.RequiredChannel, 0)
	for i, channel := range channels {
		if !joined[i] {
			missing = append(missing, channel)
		}
	}

	return MembershipResult{
		Satisfied: len(missing) == 0,
		Missing:   missing,
	}, nil
}

type lookupOutcome struct {
	member bool
	err    error
}

func (r *Registry) lookupOne(ctx context.Context, lookup MembershipLookup, channel domain.RequiredChannel, userID int64) bool {
	lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	// Buffered so a lookup that ignores cancellation can still finish and exit.
	done := make(chan lookupOutcome, 1)
	go func() {
		member, err := lookup.IsMember(lookupCtx, channel.ChannelID, userID)
		done <- lookupOutcome{member: member, err: err}
	}()

	var outcome lookupOutcome
	select {
	case outcome = <-done:
	case <-lookupCtx.Done():
		outcome = lookupOutcome{err: lookupCtx.Err()}
	}

	if outcome.err == nil {
		return outcome.member
	}

	err := outcome.err
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", domain.ErrTransportTimeout, err)
	}

	r.logger.WithFields(logging.Fields{
		"event":      "membership_lookup_failed",
		"user_id":    userID,
		"channel_id": channel.ChannelID,
		"timeout":    errors.Is(err, domain.ErrTransportTimeout),
	}).WithError(err).Warn("membership lookup failed; treating channel as not joined")

	return false
}
