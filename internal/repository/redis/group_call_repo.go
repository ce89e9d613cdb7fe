package redis

import (
	"context"
	"fmt"
	"time"

	"callfeed-backend/internal/database"
)

// livenessTTL bounds how long a liveness flag survives without the
// peeking process refreshing it
const livenessTTL = 5 * time.Minute

// GroupCallRepository tracks the companion liveness flag of group calls
// in Redis. A separate peeking process refreshes the flag while the call
// is ongoing; an expired or absent flag means the call has ended.
type GroupCallRepository struct {
	client *database.RedisClient
}

// NewGroupCallRepository creates a new GroupCallRepository
func NewGroupCallRepository(client *database.RedisClient) *GroupCallRepository {
	return &GroupCallRepository{client: client}
}

func livenessKey(callID uint64) string {
	return fmt.Sprintf("groupcall:live:%d", callID)
}

// MarkLive flags a group call as ongoing
func (r *GroupCallRepository) MarkLive(ctx context.Context, callID uint64) error {
	err := r.client.SafeSet(ctx, livenessKey(callID), "1", livenessTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to mark group call live: %w", err)
	}
	return nil
}

// RefreshLiveness keeps the flag alive (peek heartbeat)
func (r *GroupCallRepository) RefreshLiveness(ctx context.Context, callID uint64) error {
	err := r.client.SafeExpire(ctx, livenessKey(callID), livenessTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to refresh group call liveness: %w", err)
	}
	return nil
}

// MarkEnded clears the flag
func (r *GroupCallRepository) MarkEnded(ctx context.Context, callID uint64) error {
	err := r.client.SafeDel(ctx, livenessKey(callID)).Err()
	if err != nil {
		return fmt.Errorf("failed to mark group call ended: %w", err)
	}
	return nil
}

// IsLive reports whether a group call is currently ongoing.
// Implements history.GroupCallLiveness.
func (r *GroupCallRepository) IsLive(ctx context.Context, callID uint64) (bool, error) {
	exists, err := r.client.SafeExists(ctx, livenessKey(callID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check group call liveness: %w", err)
	}
	return exists > 0, nil
}

// IsDegraded returns true if Redis is in degraded mode
func (r *GroupCallRepository) IsDegraded() bool {
	return r.client.IsDegraded()
}
