package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrRateLimited is returned when a window budget is exhausted
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps any failure talking to Redis
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Scope names which counter rejected a request
type Scope string

const (
	ScopeEmail Scope = "email"
	ScopeIP    Scope = "ip"
)

// Config holds the magic link budgets. A zero max disables that scope.
type Config struct {
	MaxPerEmail int
	MaxPerIP    int
	Window      time.Duration
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Scope      Scope
}

// Service enforces fixed-window magic link budgets per email address and per
// client IP using Redis counters. A nil *Service allows everything.
type Service struct {
	redis  redis.UniversalClient
	config Config
	logger *zap.Logger
}

// NewService creates a new Service backed by the given Redis client
func NewService(client redis.UniversalClient, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		redis:  client,
		config: cfg,
		logger: logger,
	}
}

// AllowMagicLink records one sign-in link request for email and ip and reports
// whether it fits in the current window. The email budget is checked first;
// a request rejected on email does not consume IP budget.
func (s *Service) AllowMagicLink(ctx context.Context, email, ip string) (*Result, error) {
	if s == nil {
		return &Result{Allowed: true}, nil
	}

	remaining := -1
	if s.config.MaxPerEmail > 0 && email != "" {
		res, err := s.consume(ctx, emailKey(email), s.config.MaxPerEmail, ScopeEmail)
		if err != nil || !res.Allowed {
			return res, err
		}
		remaining = res.Remaining
	}

	if s.config.MaxPerIP > 0 && ip != "" {
		res, err := s.consume(ctx, ipKey(ip), s.config.MaxPerIP, ScopeIP)
		if err != nil || !res.Allowed {
			return res, err
		}
		if remaining < 0 || res.Remaining < remaining {
			remaining = res.Remaining
		}
	}

	if remaining < 0 {
		remaining = 0
	}
	return &Result{Allowed: true, Remaining: remaining}, nil
}

// Reset clears the email counter, e.g. after a successful sign-in.
func (s *Service) Reset(ctx context.Context, email string) error {
	if s == nil || email == "" {
		return nil
	}
	if err := s.redis.Del(ctx, emailKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *Service) Ping(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Service) consume(ctx context.Context, key string, limit int, scope Scope) (*Result, error) {
	count, err := s.incrementWithTTL(ctx, key)
	if err != nil {
		return nil, err
	}

	if count > int64(limit) {
		ttl, err := s.redis.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = s.config.Window
		}
		s.logger.Info("magic link rate limited",
			zap.String("scope", string(scope)),
			zap.Int64("count", count),
			zap.Duration("retry_after", ttl))
		return &Result{Allowed: false, RetryAfter: ttl, Scope: scope}, nil
	}

	return &Result{Allowed: true, Remaining: limit - int(count)}, nil
}

func (s *Service) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set only on the first hit.
	if count == 1 {
		if err := s.redis.Expire(ctx, key, s.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func emailKey(email string) string { return "portal:ml:email:" + email }

func ipKey(ip string) string { return "portal:ml:ip:" + ip }
