package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_channel_gate_bot/internal/domain"
)

const bootstrapID = int64(1000)

var t0 = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *memoryStore, *logtest.Hook) {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	store := newMemoryStore()
	reg := NewRegistry(store.adminStore(), store.channelStore(), MembershipSettings{
		Timeout:     200 * time.Millisecond,
		Concurrency: 2,
	}, logrus.NewEntry(logger))

	return reg, store, hook
}

func bootstrapped(t *testing.T) (*Registry, *memoryStore, *logtest.Hook) {
	t.Helper()

	reg, store, hook := newTestRegistry(t)
	if err := reg.Bootstrap(context.Background(), bootstrapID, t0); err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}

	return reg, store, hook
}

func TestBootstrapSeedsAdminOnce(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Bootstrap(ctx, bootstrapID, t0); err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}
	if err := reg.Bootstrap(ctx, bootstrapID, t0.Add(time.Hour)); err != nil {
		t.Fatalf("second Bootstrap returned error: %v", err)
	}

	admins, err := reg.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins returned error: %v", err)
	}
	if len(admins) != 1 {
		t.Fatalf("expected exactly one admin, got %+v", admins)
	}

	admin := admins[0]
	if admin.UserID != bootstrapID || admin.AddedBy != bootstrapID || !admin.AddedAt.Equal(t0) {
		t.Fatalf("unexpected bootstrap record %+v", admin)
	}
	if len(store.admins) != 1 {
		t.Fatalf("expected store to hold one admin")
	}
}

func TestBootstrapRejectsInvalidID(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	for _, id := range []int64{0, -5} {
		if err := reg.Bootstrap(context.Background(), id, t0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("Bootstrap(%d) expected ErrInvalidArgument, got %v", id, err)
		}
	}
}

func TestIsAdmin(t *testing.T) {
	reg, store, hook := bootstrapped(t)
	ctx := context.Background()

	if !reg.IsAdmin(ctx, bootstrapID) {
		t.Fatalf("expected bootstrap user to be admin")
	}
	if reg.IsAdmin(ctx, 42) {
		t.Fatalf("expected unknown user not to be admin")
	}
	if reg.IsAdmin(ctx, 0) {
		t.Fatalf("expected zero user id not to be admin")
	}

	store.existsErr = errors.New("db unavailable")
	if reg.IsAdmin(ctx, bootstrapID) {
		t.Fatalf("expected storage failure to yield false")
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "admin_check_failed" || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected admin_check_failed error log, got %+v", entry)
	}
}

func TestGrantAdmin(t *testing.T) {
	tests := []struct {
		name    string
		actor   int64
		target  int64
		wantErr error
	}{
		{name: "non admin actor", actor: 42, target: 43, wantErr: domain.ErrPermissionDenied},
		{name: "zero actor", actor: 0, target: 43, wantErr: domain.ErrPermissionDenied},
		{name: "zero target", actor: bootstrapID, target: 0, wantErr: domain.ErrInvalidArgument},
		{name: "valid grant", actor: bootstrapID, target: 43},
		{name: "self grant is a no-op", actor: bootstrapID, target: bootstrapID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _, _ := bootstrapped(t)

			err := reg.GrantAdmin(context.Background(), tt.actor, tt.target, t0.Add(time.Minute))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GrantAdmin returned error: %v", err)
			}
			if !reg.IsAdmin(context.Background(), tt.target) {
				t.Fatalf("expected target to be admin")
			}
		})
	}
}

func TestGrantAdminIsIdempotent(t *testing.T) {
	reg, store, _ := bootstrapped(t)
	ctx := context.Background()

	if err := reg.GrantAdmin(ctx, bootstrapID, 7, t0.Add(time.Minute)); err != nil {
		t.Fatalf("GrantAdmin returned error: %v", err)
	}
	if err := reg.GrantAdmin(ctx, 7, 7, t0.Add(time.Hour)); err != nil {
		t.Fatalf("repeated GrantAdmin returned error: %v", err)
	}

	admin := store.admins[7]
	if admin.AddedBy != bootstrapID || !admin.AddedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("expected original grant to be kept, got %+v", admin)
	}
}

func TestGrantAdminChain(t *testing.T) {
	reg, _, _ := bootstrapped(t)
	ctx := context.Background()

	if err := reg.GrantAdmin(ctx, 42, 43, t0); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected non-admin grant to fail, got %v", err)
	}
	if err := reg.GrantAdmin(ctx, bootstrapID, 42, t0.Add(time.Second)); err != nil {
		t.Fatalf("GrantAdmin returned error: %v", err)
	}
	if err := reg.GrantAdmin(ctx, 42, 43, t0.Add(2*time.Second)); err != nil {
		t.Fatalf("expected new admin to grant, got %v", err)
	}

	admins, err := reg.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins returned error: %v", err)
	}

	want := []domain.Administrator{
		{UserID: bootstrapID, AddedBy: bootstrapID, AddedAt: t0},
		{UserID: 42, AddedBy: bootstrapID, AddedAt: t0.Add(time.Second)},
		{UserID: 43, AddedBy: 42, AddedAt: t0.Add(2 * time.Second)},
	}
	if len(admins) != len(want) {
		t.Fatalf("expected %d admins, got %+v", len(want), admins)
	}
	for i := range want {
		if admins[i].UserID != want[i].UserID || admins[i].AddedBy != want[i].AddedBy || !admins[i].AddedAt.Equal(want[i].AddedAt) {
			t.Fatalf("admin %d: expected %+v, got %+v", i, want[i], admins[i])
		}
	}
}

func TestGrantAdminConcurrentDuplicates(t *testing.T) {
	reg, store, _ := bootstrapped(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- reg.GrantAdmin(ctx, bootstrapID, 99, t0)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent GrantAdmin returned error: %v", err)
		}
	}
	if len(store.admins) != 2 {
		t.Fatalf("expected bootstrap admin plus one grant, got %d", len(store.admins))
	}
}

func TestGrantAdminPropagatesStorageErrors(t *testing.T) {
	reg, store, _ := bootstrapped(t)

	store.existsErr = errors.New("db unavailable")
	err := reg.GrantAdmin(context.Background(), bootstrapID, 5, t0)
	if err == nil || errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected storage error rather than permission denied, got %v", err)
	}

	store.existsErr = nil
	store.insertErr = errors.New("write failed")
	if err := reg.GrantAdmin(context.Background(), bootstrapID, 5, t0); !errors.Is(err, store.insertErr) {
		t.Fatalf("expected wrapped insert error, got %v", err)
	}
}

func TestRevokeAdmin(t *testing.T) {
	reg, _, _ := bootstrapped(t)
	ctx := context.Background()

	if err := reg.GrantAdmin(ctx, bootstrapID, 7, t0); err != nil {
		t.Fatalf("GrantAdmin returned error: %v", err)
	}

	if err := reg.RevokeAdmin(ctx, 42, 7); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := reg.RevokeAdmin(ctx, 7, bootstrapID); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected bootstrap admin to be protected, got %v", err)
	}
	if err := reg.RevokeAdmin(ctx, bootstrapID, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for zero target, got %v", err)
	}
	if err := reg.RevokeAdmin(ctx, bootstrapID, 8); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-admin target, got %v", err)
	}

	if err := reg.RevokeAdmin(ctx, bootstrapID, 7); err != nil {
		t.Fatalf("RevokeAdmin returned error: %v", err)
	}
	if reg.IsAdmin(ctx, 7) {
		t.Fatalf("expected revoked user to lose admin status")
	}
	if err := reg.RevokeAdmin(ctx, bootstrapID, 7); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected second revoke to report ErrNotFound, got %v", err)
	}
}

func TestListAdminsWrapsStorageErrors(t *testing.T) {
	reg, store, _ := bootstrapped(t)
	store.adminListErr = errors.New("cursor failed")

	if _, err := reg.ListAdmins(context.Background()); !errors.Is(err, store.adminListErr) {
		t.Fatalf("expected wrapped list error, got %v", err)
	}
}

func TestRegistryRequiresInitialization(t *testing.T) {
	var reg *Registry

	if reg.IsAdmin(context.Background(), 1) {
		t.Fatalf("expected nil registry to report false")
	}
	if err := reg.Bootstrap(context.Background(), 1, t0); err == nil {
		t.Fatalf("expected error from nil registry")
	}

	reg, _, _ = newTestRegistry(t)
	if _, err := reg.ListAdmins(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
}
