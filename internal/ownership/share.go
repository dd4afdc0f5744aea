package ownership

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// shareRow mirrors one share_links record. Tokens are stored as a lookup
// prefix plus a bcrypt hash; the raw token never touches the database.
type shareRow struct {
	ID           string
	TokenHash    string
	ResourceType string
	ResourceID   string
	IsActive     bool
	ExpiresAt    sql.NullTime
}

const sharePrefixLen = 8

func (s *sqlResourceStore) LookupShare(ctx context.Context, prefix string) (*shareRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, resource_type, resource_id, is_active, expires_at
		FROM share_links
		WHERE token_prefix = $1
	`, prefix)

	var r shareRow
	if err := row.Scan(&r.ID, &r.TokenHash, &r.ResourceType, &r.ResourceID, &r.IsActive, &r.ExpiresAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ShareAccess is the verdict of a share-token lookup. This path is decoupled
// from per-user ownership: a valid link grants access to exactly one resource
// regardless of who follows it.
type ShareAccess struct {
	Valid        bool
	ShareID      string
	ResourceType ResourceType
	ResourceID   string
	Err          string
}

// CheckSharedAccess validates a share token and returns the shared resource
// for downstream authorization. Inactive or expired links are denied.
func (v *Verifier) CheckSharedAccess(ctx context.Context, shareToken string) ShareAccess {
	if len(shareToken) < sharePrefixLen {
		return ShareAccess{Err: "invalid share token"}
	}

	row, err := v.store.LookupShare(ctx, shareToken[:sharePrefixLen])
	if err != nil {
		if err == sql.ErrNoRows {
			return ShareAccess{Err: "share link not found"}
		}
		v.logger.Error("share lookup failed", zap.Error(err))
		return ShareAccess{Err: "share lookup failed"}
	}

	if bcrypt.CompareHashAndPassword([]byte(row.TokenHash), []byte(shareToken)) != nil {
		return ShareAccess{Err: "invalid share token"}
	}
	if !row.IsActive {
		return ShareAccess{Err: "share link has been revoked"}
	}
	if row.ExpiresAt.Valid && time.Now().After(row.ExpiresAt.Time) {
		return ShareAccess{Err: "share link has expired"}
	}

	return ShareAccess{
		Valid:        true,
		ShareID:      row.ID,
		ResourceType: ResourceType(row.ResourceType),
		ResourceID:   row.ResourceID,
	}
}
