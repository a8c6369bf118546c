package auth_test

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/dstam/groundwork/internal/auth"
	"github.com/dstam/groundwork/internal/errorz/testerr"
)

func Test_Principal_HasScope(t *testing.T) {
	p := auth.Principal{
		UserID: 1,
		Scopes: []string{auth.ScopeAuthenticated, "admin"},
	}

	if !p.HasScope("admin") {
		t.Errorf("expected principal to hold scope %q", "admin")
	}

	if p.HasScope("editor") {
		t.Errorf("expected principal to not hold scope %q", "editor")
	}
}

func Test_Resolver_Resolve(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("ok, zero subject resolves to unauthenticated", func(t *testing.T) {
		st := newServiceTest(t)
		resolver := auth.NewResolver(st.store, logger)

		got := resolver.Resolve(context.Background(), 0)
		assertPrincipal(t, got, auth.Unauthenticated())
	})

	t.Run("ok, unknown user resolves to unauthenticated", func(t *testing.T) {
		st := newServiceTest(t)
		resolver := auth.NewResolver(st.store, logger)

		got := resolver.Resolve(context.Background(), 42)
		assertPrincipal(t, got, auth.Unauthenticated())
	})

	t.Run("ok, inactive user resolves to unauthenticated", func(t *testing.T) {
		st := newServiceTest(t)
		credentials := st.createUser("alice@example.com", "reallyStrongPassword1", false)
		user := st.findUser(credentials.Email)

		resolver := auth.NewResolver(st.store, logger)

		got := resolver.Resolve(context.Background(), user.ID)
		assertPrincipal(t, got, auth.Unauthenticated())
	})

	t.Run("ok, user without scopes", func(t *testing.T) {
		st := newServiceTest(t)
		credentials := st.createUser("alice@example.com", "reallyStrongPassword1", true)
		user := st.findUser(credentials.Email)

		resolver := auth.NewResolver(st.store, logger)

		got := resolver.Resolve(context.Background(), user.ID)
		assertPrincipal(t, got, auth.Principal{
			UserID: user.ID,
			Scopes: []string{auth.ScopeAuthenticated},
		})
	})

	t.Run("ok, user scopes are sorted after the authenticated scope", func(t *testing.T) {
		st := newServiceTest(t)
		credentials := st.createUser("alice@example.com", "reallyStrongPassword1", true)
		user := st.findUser(credentials.Email)

		st.inTx(func(tx auth.Tx) error {
			for _, code := range []string{"editor", "admin"} {
				if err := tx.CreateScope(&auth.Scope{Code: code}); err != nil {
					return err
				}
				if err := tx.GrantScope(user.ID, code); err != nil {
					return err
				}
			}
			return nil
		})

		resolver := auth.NewResolver(st.store, logger)

		got := resolver.Resolve(context.Background(), user.ID)
		assertPrincipal(t, got, auth.Principal{
			UserID: user.ID,
			Scopes: []string{auth.ScopeAuthenticated, "admin", "editor"},
		})
	})

	t.Run("ok, store failure degrades to unauthenticated", func(t *testing.T) {
		st := newServiceTest(t)
		credentials := st.createUser("alice@example.com", "reallyStrongPassword1", true)
		user := st.findUser(credentials.Email)

		failingDeps := testerr.NewFailingDeps(testerr.Err, 1)
		st.store.tracker = &failingDeps[0]

		resolver := auth.NewResolver(st.store, logger)

		got := resolver.Resolve(context.Background(), user.ID)
		assertPrincipal(t, got, auth.Unauthenticated())
	})
}

func assertPrincipal(t *testing.T, got, want auth.Principal) {
	t.Helper()

	if !reflect.DeepEqual(got, want) {
		t.Errorf("got\n%+v\nwant\n%+v\n", got, want)
	}
}
