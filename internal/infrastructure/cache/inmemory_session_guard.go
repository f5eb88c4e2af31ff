package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quotedeck/backend/internal/domain/reconcile"
)

// claim represents a held tenant session with expiration
type claim struct {
	sessionID uuid.UUID
	expiresAt time.Time
}

// InMemorySessionGuard implements SessionGuard using an in-memory map
// This is suitable for single-instance deployments and testing
type InMemorySessionGuard struct {
	mu        sync.Mutex
	claims    map[uuid.UUID]claim
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemorySessionGuard creates a new in-memory session guard
// It starts a background goroutine to clean up expired claims
func NewInMemorySessionGuard() *InMemorySessionGuard {
	guard := &InMemorySessionGuard{
		claims:   make(map[uuid.UUID]claim),
		stopChan: make(chan struct{}),
	}

	guard.wg.Add(1)
	go guard.cleanupLoop()

	return guard
}

// Acquire attempts to claim the tenant for sessionID
func (g *InMemorySessionGuard) Acquire(ctx context.Context, tenantID, sessionID uuid.UUID, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, exists := g.claims[tenantID]; exists {
		if time.Now().Before(c.expiresAt) {
			return false, nil // Another session holds the claim
		}
		// Claim exists but expired, will be overwritten
	}

	g.claims[tenantID] = claim{
		sessionID: sessionID,
		expiresAt: time.Now().Add(ttl),
	}
	return true, nil
}

// Release drops the tenant's claim
func (g *InMemorySessionGuard) Release(ctx context.Context, tenantID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, tenantID)
	return nil
}

// Close stops the cleanup goroutine and releases resources
// Safe to call multiple times
func (g *InMemorySessionGuard) Close() error {
	g.closeOnce.Do(func() {
		close(g.stopChan)
		g.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired claims
func (g *InMemorySessionGuard) cleanupLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return
		case <-ticker.C:
			g.cleanup()
		}
	}
}

// cleanup removes expired claims from the guard
func (g *InMemorySessionGuard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for tenantID, c := range g.claims {
		if now.After(c.expiresAt) {
			delete(g.claims, tenantID)
		}
	}
}

// Size returns the number of held claims (for testing/monitoring)
func (g *InMemorySessionGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claims)
}

// Ensure InMemorySessionGuard implements SessionGuard
var _ reconcile.SessionGuard = (*InMemorySessionGuard)(nil)
