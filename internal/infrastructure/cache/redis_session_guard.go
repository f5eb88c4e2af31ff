package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/quotedeck/backend/internal/domain/reconcile"
)

// RedisSessionGuard implements SessionGuard using Redis
// This is suitable for distributed deployments where multiple instances
// need to share the per-tenant claim
type RedisSessionGuard struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisSessionGuard creates a new Redis-based session guard
func NewRedisSessionGuard(cfg RedisConfig) (*RedisSessionGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSessionGuard{
		client:    client,
		keyPrefix: "reconcile:session:",
	}, nil
}

// NewRedisSessionGuardWithClient creates a guard with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisSessionGuardWithClient(client *redis.Client, keyPrefix string) *RedisSessionGuard {
	if keyPrefix == "" {
		keyPrefix = "reconcile:session:"
	}
	return &RedisSessionGuard{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire attempts to claim the tenant for sessionID
// Uses SETNX (SET if Not eXists) for atomic claim-or-reject
func (g *RedisSessionGuard) Acquire(ctx context.Context, tenantID, sessionID uuid.UUID, ttl time.Duration) (bool, error) {
	key := g.keyPrefix + tenantID.String()

	claimed, err := g.client.SetNX(ctx, key, sessionID.String(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim tenant session: %w", err)
	}
	return claimed, nil
}

// Release drops the tenant's claim
func (g *RedisSessionGuard) Release(ctx context.Context, tenantID uuid.UUID) error {
	key := g.keyPrefix + tenantID.String()

	if err := g.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release tenant session: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (g *RedisSessionGuard) Close() error {
	return g.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (g *RedisSessionGuard) GetClient() *redis.Client {
	return g.client
}

// Ensure RedisSessionGuard implements SessionGuard
var _ reconcile.SessionGuard = (*RedisSessionGuard)(nil)
