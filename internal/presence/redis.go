// Package presence mirrors the gateway's online devices into Redis so
// that other processes can look a device up without calling this one.
package presence

import (
	"context"
	"fmt"
	"time"

	"workphone-gateway/internal/gateway"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewStore(ctx context.Context, c Config, log *zap.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Store{rdb: rdb, ttl: ttl, log: log}, nil
}

// presence key: workphone:presence:<device>
// value: owning user id; the TTL bounds how long a crashed process can leave
// a device marked online.
func presenceKey(deviceID string) string { return "workphone:presence:" + deviceID }

func (s *Store) DeviceOnline(ctx context.Context, info gateway.SessionInfo) {
	if err := s.rdb.Set(ctx, presenceKey(info.DeviceID), info.UserID, s.ttl).Err(); err != nil {
		s.log.Warn("presence online write failed", zap.String("device_id", info.DeviceID), zap.Error(err))
	}
}

func (s *Store) DeviceOffline(ctx context.Context, info gateway.SessionInfo) {
	if err := s.rdb.Del(ctx, presenceKey(info.DeviceID)).Err(); err != nil {
		s.log.Warn("presence offline write failed", zap.String("device_id", info.DeviceID), zap.Error(err))
	}
}

// Refresh extends the TTL of every device currently online.
func (s *Store) Refresh(ctx context.Context, sessions []gateway.SessionInfo) error {
	if len(sessions) == 0 {
		return nil
	}
	pipe := s.rdb.Pipeline()
	for _, info := range sessions {
		pipe.Set(ctx, presenceKey(info.DeviceID), info.UserID, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "presence refresh")
	}
	return nil
}

// RunRefresher refreshes presence keys at half the TTL until ctx ends.
func (s *Store) RunRefresher(ctx context.Context, source func() []gateway.SessionInfo) {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rctx, cancel := context.WithTimeout(ctx, s.ttl/2)
			if err := s.Refresh(rctx, source()); err != nil {
				s.log.Warn("presence refresh failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
