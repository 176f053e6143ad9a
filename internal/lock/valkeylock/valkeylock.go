package valkeylock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/resume-matcher/internal/lock"
	"github.com/spigell/resume-matcher/internal/utils"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

const (
	DefaultTTL          = 2 * time.Minute
	DefaultWaitTimeout  = time.Minute
	DefaultPollInterval = 250 * time.Millisecond
	keyPrefix           = "resume-matcher:lock:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Config struct {
	Address  string
	Password string
	TTL      time.Duration
	// WaitTimeout bounds how long Acquire waits for a lock held by another run.
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// backend is the pair of valkey commands the locker needs.
type backend interface {
	setNX(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	compareAndDelete(ctx context.Context, key, token string) (int64, error)
	close()
}

type valkeyBackend struct {
	client valkey.Client
}

func (b valkeyBackend) setNX(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	cmd := b.client.B().Set().
		Key(key).
		Value(token).
		Nx().
		PxMilliseconds(ttl.Milliseconds()).
		Build()

	err := b.client.Do(ctx, cmd).Error()
	if valkey.IsValkeyNil(err) {
		return false, nil
	}
	return err == nil, err
}

func (b valkeyBackend) compareAndDelete(ctx context.Context, key, token string) (int64, error) {
	return releaseScript.Exec(ctx, b.client, []string{key}, []string{token}).AsInt64()
}

func (b valkeyBackend) close() {
	b.client.Close()
}

type Locker struct {
	backend      backend
	ttl          time.Duration
	waitTimeout  time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

var _ lock.Locker = (*Locker)(nil)

func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Locker, error) {
	if cfg.Address == "" {
		return nil, errors.New("valkey address is required")
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Address},
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Valkey client: %w", err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to ping Valkey: %w", err)
	}

	return newLocker(valkeyBackend{client: client}, cfg, logger), nil
}

func newLocker(b backend, cfg Config, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	wait := cfg.WaitTimeout
	if wait <= 0 {
		wait = DefaultWaitTimeout
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	return &Locker{backend: b, ttl: ttl, waitTimeout: wait, pollInterval: poll, logger: logger}
}

func (l *Locker) Close() {
	l.backend.close()
}

// Acquire polls until the key is free, the wait timeout passes or ctx is done.
// The key expires after the configured TTL so a crashed holder never blocks others forever.
func (l *Locker) Acquire(ctx context.Context, key string) (lock.Release, error) {
	token := uuid.NewString()
	fullKey := keyPrefix + key

	ctx, cancel := context.WithTimeout(ctx, l.waitTimeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		acquired, err := l.backend.setNX(ctx, fullKey, token, l.ttl)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %w", lock.ErrNotAcquired, fullKey, ctx.Err())
			}
			return nil, fmt.Errorf("acquire lock %s: %w", fullKey, err)
		}
		if acquired {
			l.logger.Debug("lock acquired", zap.String("key", fullKey), zap.Int("attempt", attempt))
			return l.releaser(fullKey, token), nil
		}

		if attempt == 1 {
			l.logger.Info("waiting for lock held by another run",
				zap.String("key", fullKey),
				zap.Duration("wait_timeout", l.waitTimeout),
			)
		}

		if err := utils.WaitFor(ctx, l.pollInterval); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", lock.ErrNotAcquired, fullKey, err)
		}
	}
}

func (l *Locker) releaser(key, token string) lock.Release {
	return func(ctx context.Context) error {
		deleted, err := l.backend.compareAndDelete(ctx, key, token)
		if err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		if deleted == 0 {
			l.logger.Warn("lock expired before release", zap.String("key", key))
		}
		return nil
	}
}
