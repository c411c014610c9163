package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRevocationTTL = 24 * time.Hour

// SubjectRevocations remembers external subjects whose account was deleted so
// tokens still in circulation for them stop verifying.
// Key format: revoked:subject:<subject_id>
type SubjectRevocations struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewSubjectRevocations keeps each revocation for ttl, which should cover the
// longest token lifetime the issuer hands out.
func NewSubjectRevocations(client redis.Cmdable, ttl time.Duration) *SubjectRevocations {
	if ttl <= 0 {
		ttl = defaultRevocationTTL
	}
	return &SubjectRevocations{client: client, ttl: ttl}
}

// Revoke records subjectID as deleted.
func (s *SubjectRevocations) Revoke(ctx context.Context, subjectID string) error {
	if err := s.client.Set(ctx, s.key(subjectID), time.Now().UTC().Unix(), s.ttl).Err(); err != nil {
		return fmt.Errorf("revoke subject: %w", err)
	}
	return nil
}

// IsRevoked reports whether subjectID has been revoked.
func (s *SubjectRevocations) IsRevoked(ctx context.Context, subjectID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(subjectID)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation check: %w", err)
	}
	return n > 0, nil
}

func (s *SubjectRevocations) key(subjectID string) string {
	return "revoked:subject:" + subjectID
}
