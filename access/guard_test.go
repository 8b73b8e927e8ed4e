package access

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/portal/identity"
	"github.com/upb/portal/session"
	"go.uber.org/zap"
)

// MockResolver is a mock implementation of PrincipalResolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) ResolveCurrentPrincipal(ctx context.Context, rc session.RequestContext) (*identity.Principal, error) {
	args := m.Called(ctx, rc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Principal), args.Error(1)
}

func TestRequireAuthenticated(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	rc := session.RequestContext{AccessToken: "tok"}

	t.Run("authenticated caller gets the principal unchanged", func(t *testing.T) {
		principal := &identity.Principal{ID: uuid.New(), Email: "ada@example.com"}
		resolver := new(MockResolver)
		resolver.On("ResolveCurrentPrincipal", mock.Anything, rc).Return(principal, nil)
		guard := NewGuard(resolver, GuardOptions{}, logger)

		decision, err := guard.RequireAuthenticated(ctx, rc, "/dashboard")
		require.NoError(t, err)
		assert.True(t, decision.IsAuthorized())
		assert.Same(t, principal, decision.Principal)
		assert.Empty(t, decision.Target)
	})

	t.Run("unauthenticated caller is redirected with the intended path", func(t *testing.T) {
		resolver := new(MockResolver)
		resolver.On("ResolveCurrentPrincipal", mock.Anything, rc).Return(nil, nil)
		guard := NewGuard(resolver, GuardOptions{SignInPath: "/login"}, logger)

		decision, err := guard.RequireAuthenticated(ctx, rc, "/dashboard")
		require.NoError(t, err)
		assert.Equal(t, OutcomeRedirect, decision.Outcome)
		assert.Nil(t, decision.Principal)

		target, err := url.Parse(decision.Target)
		require.NoError(t, err)
		assert.Equal(t, "/login", target.Path)
		assert.Equal(t, "/dashboard", target.Query().Get("redirect"))
		assert.Equal(t, "/login?redirect=%2Fdashboard", decision.Target)
	})

	t.Run("empty intended path omits the parameter entirely", func(t *testing.T) {
		resolver := new(MockResolver)
		resolver.On("ResolveCurrentPrincipal", mock.Anything, rc).Return(nil, nil)
		guard := NewGuard(resolver, GuardOptions{SignInPath: "/auth/sign-in"}, logger)

		decision, err := guard.RequireAuthenticated(ctx, rc, "")
		require.NoError(t, err)
		assert.Equal(t, "/auth/sign-in", decision.Target)

		target, err := url.Parse(decision.Target)
		require.NoError(t, err)
		_, present := target.Query()["redirect"]
		assert.False(t, present)
	})

	t.Run("provider failure is an error by default", func(t *testing.T) {
		failure := fmt.Errorf("resolve principal: %w", identity.ErrProviderUnavailable)
		resolver := new(MockResolver)
		resolver.On("ResolveCurrentPrincipal", mock.Anything, rc).Return(nil, failure)
		guard := NewGuard(resolver, GuardOptions{}, logger)

		decision, err := guard.RequireAuthenticated(ctx, rc, "/dashboard")
		assert.ErrorIs(t, err, identity.ErrProviderUnavailable)
		assert.Equal(t, Decision{}, decision)
	})

	t.Run("provider failure folds into redirect when configured", func(t *testing.T) {
		failure := fmt.Errorf("resolve principal: %w", identity.ErrProviderUnavailable)
		resolver := new(MockResolver)
		resolver.On("ResolveCurrentPrincipal", mock.Anything, rc).Return(nil, failure)
		guard := NewGuard(resolver, GuardOptions{FoldProviderFailure: true}, logger)

		decision, err := guard.RequireAuthenticated(ctx, rc, "/dashboard")
		require.NoError(t, err)
		assert.Equal(t, "/login?redirect=%2Fdashboard", decision.Target)
		assert.ErrorIs(t, decision.ProviderFailure, identity.ErrProviderUnavailable)
	})

	t.Run("cancellation is never folded", func(t *testing.T) {
		resolver := new(MockResolver)
		resolver.On("ResolveCurrentPrincipal", mock.Anything, rc).Return(nil, context.Canceled)
		guard := NewGuard(resolver, GuardOptions{FoldProviderFailure: true}, logger)

		_, err := guard.RequireAuthenticated(ctx, rc, "/dashboard")
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("default sign-in path", func(t *testing.T) {
		guard := NewGuard(new(MockResolver), GuardOptions{}, logger)
		assert.Equal(t, "/login", guard.SignInPath())
	})
}

func TestSignInTarget(t *testing.T) {
	tests := []struct {
		intended string
		want     string
	}{
		{"", "/login"},
		{"/dashboard", "/login?redirect=%2Fdashboard"},
		{"/reports?year=2024&q=a b", "/login?redirect=%2Freports%3Fyear%3D2024%26q%3Da%20b"},
		{"/café", "/login?redirect=%2Fcaf%C3%A9"},
	}
	for _, tt := range tests {
		t.Run(tt.intended, func(t *testing.T) {
			got := SignInTarget("/login", tt.intended)
			assert.Equal(t, tt.want, got)

			if tt.intended != "" {
				u, err := url.Parse(got)
				require.NoError(t, err)
				assert.Equal(t, tt.intended, u.Query().Get(RedirectParam))
			}
		})
	}
}

func TestRawQueryValue(t *testing.T) {
	v, ok := RawQueryValue("redirect=%2Fsettings", "redirect")
	assert.True(t, ok)
	assert.Equal(t, "%2Fsettings", v)

	v, ok = RawQueryValue("a=1&&redirect=%2Fa%3Fb%3D1&redirect=second", "redirect")
	assert.True(t, ok)
	assert.Equal(t, "%2Fa%3Fb%3D1", v)

	v, ok = RawQueryValue("redirect", "redirect")
	assert.True(t, ok)
	assert.Empty(t, v)

	_, ok = RawQueryValue("other=1", "redirect")
	assert.False(t, ok)

	_, ok = RawQueryValue("", "redirect")
	assert.False(t, ok)
}

func TestSafeRedirectPath(t *testing.T) {
	const fallback = "/dashboard"
	for in, want := range map[string]string{
		"/settings":            "/settings",
		"/reports?y=1":         "/reports?y=1",
		"":                     fallback,
		"settings":             fallback,
		"//evil.example.com":   fallback,
		"/\\evil.example.com":  fallback,
		"https://evil.example": fallback,
		"/a\r\nSet-Cookie: x":  fallback,
	} {
		assert.Equal(t, want, SafeRedirectPath(in, fallback), in)
	}
}
