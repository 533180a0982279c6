package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/anjiri1684/estate_portal/clock"
	"github.com/anjiri1684/estate_portal/logger"
	"github.com/redis/go-redis/v9"
)

const (
	MaxLoginAttempts = 5
	LockoutWindow    = 15 * time.Minute
)

// ErrUnavailable is returned in fail-closed mode when the counter store
// cannot be reached.
var ErrUnavailable = errors.New("rate limiter unavailable")

type Category string

const (
	CategoryDefault  Category = "default"
	CategoryLogin    Category = "login"
	CategoryRegister Category = "register"
	CategoryPayment  Category = "payment"
	CategoryUpload   Category = "upload"
	CategoryOTP      Category = "otp"
)

type Rule struct {
	Requests int64
	Window   time.Duration
}

var Rules = map[Category]Rule{
	CategoryDefault:  {Requests: 100, Window: 15 * time.Minute},
	CategoryLogin:    {Requests: 5, Window: 15 * time.Minute},
	CategoryRegister: {Requests: 3, Window: time.Hour},
	CategoryPayment:  {Requests: 10, Window: time.Hour},
	CategoryUpload:   {Requests: 5, Window: time.Hour},
	CategoryOTP:      {Requests: 3, Window: 5 * time.Minute},
}

type Result struct {
	Success   bool  `json:"success"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
	Reset     int64 `json:"reset"`
}

type LockoutStatus struct {
	Locked        bool
	Attempts      int64
	RemainingTime time.Duration
}

// Guard keeps fixed-window counters in Redis for login lockout and per-client
// request limits.
type Guard struct {
	rdb      redis.Cmdable
	failOpen bool
	clock    clock.Clock
}

func New(rdb redis.Cmdable, failOpen bool, clk clock.Clock) *Guard {
	return &Guard{rdb: rdb, failOpen: failOpen, clock: clk}
}

// NewClient opens a go-redis client from a redis:// or rediss:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func lockoutKey(identifier string) string {
	return "lockout:" + identifier
}

func rateKey(category Category, identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%s", category, identifier)
}

func (g *Guard) CheckLockout(ctx context.Context, identifier string) (LockoutStatus, error) {
	key := lockoutKey(identifier)
	attempts, err := g.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return LockoutStatus{}, nil
	}
	if err != nil {
		return g.lockoutFailure(identifier, err)
	}
	if attempts < MaxLoginAttempts {
		return LockoutStatus{Attempts: attempts}, nil
	}

	ttl, err := g.rdb.TTL(ctx, key).Result()
	if err != nil {
		return g.lockoutFailure(identifier, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return LockoutStatus{Locked: true, Attempts: attempts, RemainingTime: ttl}, nil
}

func (g *Guard) RecordFailedLogin(ctx context.Context, identifier string) error {
	key := lockoutKey(identifier)
	current, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return g.recordFailure("record failed login", identifier, err)
	}
	if current == 1 {
		if err := g.rdb.Expire(ctx, key, LockoutWindow).Err(); err != nil {
			return g.recordFailure("set lockout expiry", identifier, err)
		}
	}
	if current >= MaxLoginAttempts {
		logger.Log.WithField("identifier", identifier).WithField("attempts", current).Warn("account locked after repeated failed logins")
	}
	return nil
}

func (g *Guard) RecordSuccessfulLogin(ctx context.Context, identifier string) error {
	if err := g.rdb.Del(ctx, lockoutKey(identifier)).Err(); err != nil {
		return g.recordFailure("reset lockout", identifier, err)
	}
	return nil
}

// Allow counts one request for identifier in category. Unknown categories use
// the default rule.
func (g *Guard) Allow(ctx context.Context, identifier string, category Category) (Result, error) {
	rule, ok := Rules[category]
	if !ok {
		category = CategoryDefault
		rule = Rules[CategoryDefault]
	}
	key := rateKey(category, identifier)
	now := g.clock.Now()

	current, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return g.allowFailure(identifier, rule, now, err)
	}
	if current == 1 {
		if err := g.rdb.Expire(ctx, key, rule.Window).Err(); err != nil {
			return g.allowFailure(identifier, rule, now, err)
		}
	}
	ttl, err := g.rdb.TTL(ctx, key).Result()
	if err != nil {
		return g.allowFailure(identifier, rule, now, err)
	}
	if ttl < 0 {
		// counter lost its expiry between INCR and EXPIRE
		if err := g.rdb.Expire(ctx, key, rule.Window).Err(); err != nil {
			return g.allowFailure(identifier, rule, now, err)
		}
		ttl = rule.Window
	}

	reset := now.Add(ttl).Unix()
	if current > rule.Requests {
		return Result{Success: false, Limit: rule.Requests, Remaining: 0, Reset: reset}, nil
	}
	return Result{Success: true, Limit: rule.Requests, Remaining: rule.Requests - current, Reset: reset}, nil
}

func (g *Guard) lockoutFailure(identifier string, err error) (LockoutStatus, error) {
	logger.Log.WithError(err).WithField("identifier", identifier).Error("lockout check failed")
	if g.failOpen {
		return LockoutStatus{}, nil
	}
	return LockoutStatus{Locked: true}, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (g *Guard) recordFailure(action, identifier string, err error) error {
	logger.Log.WithError(err).WithField("identifier", identifier).Error(action)
	if g.failOpen {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (g *Guard) allowFailure(identifier string, rule Rule, now time.Time, err error) (Result, error) {
	logger.Log.WithError(err).WithField("identifier", identifier).Error("rate limit check failed")
	reset := now.Add(rule.Window).Unix()
	if g.failOpen {
		return Result{Success: true, Limit: rule.Requests, Remaining: rule.Requests, Reset: reset}, nil
	}
	return Result{Success: false, Limit: rule.Requests, Remaining: 0, Reset: reset}, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// FormatRemainingTime renders a lockout TTL as "42 seconds" or "15 minutes".
func FormatRemainingTime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds < 60 {
		return fmt.Sprintf("%d seconds", seconds)
	}
	minutes := int64(math.Ceil(float64(seconds) / 60))
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
