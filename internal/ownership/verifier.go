package ownership

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// resourceStore abstracts DB queries for testability.
type resourceStore interface {
	LookupOwner(ctx context.Context, query, resourceID string) (string, error)
	LookupOwnersBatch(ctx context.Context, query string, ids []string) (map[string]string, error)
	LookupShare(ctx context.Context, prefix string) (*shareRow, error)
}

// sqlResourceStore is the real implementation using *sql.DB.
type sqlResourceStore struct {
	db *sql.DB
}

func (s *sqlResourceStore) LookupOwner(ctx context.Context, query, resourceID string) (string, error) {
	var owner string
	if err := s.db.QueryRowContext(ctx, query, resourceID).Scan(&owner); err != nil {
		return "", err
	}
	return owner, nil
}

func (s *sqlResourceStore) LookupOwnersBatch(ctx context.Context, query string, ids []string) (map[string]string, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(query, placeholders(len(ids))), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owners := make(map[string]string, len(ids))
	for rows.Next() {
		var id, owner string
		if err := rows.Scan(&id, &owner); err != nil {
			return nil, err
		}
		owners[id] = owner
	}
	return owners, rows.Err()
}

// Result is the verdict of a single ownership check. Expected denials are
// carried in the struct, not as Go errors, so callers branch deterministically.
type Result struct {
	IsOwner       bool
	OwnerID       string
	NotFound      bool
	InternalError bool
	// Skipped means the tool has no ownership mapping and the check was
	// intentionally not required.
	Skipped bool
	Err     string
}

func denied(reason string) Result {
	return Result{Err: reason}
}

// Verifier resolves ownership questions against the resource tables.
type Verifier struct {
	store  resourceStore
	logger *zap.Logger
}

// Config configures the Verifier.
type Config struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// NewVerifier creates a Verifier backed by the given database.
func NewVerifier(cfg Config) *Verifier {
	return &Verifier{
		store:  &sqlResourceStore{db: cfg.DB},
		logger: cfg.Logger,
	}
}

// newVerifierWithStore creates a Verifier with a custom store (for testing).
func newVerifierWithStore(store resourceStore, logger *zap.Logger) *Verifier {
	return &Verifier{store: store, logger: logger}
}

// VerifyOwnership checks whether userID owns the given resource. Any error,
// missing row, or owner mismatch yields IsOwner=false; a raw DB error never
// reaches the authorization decision.
func (v *Verifier) VerifyOwnership(ctx context.Context, resourceType ResourceType, resourceID, userID string) Result {
	q, ok := queryRegistry[resourceType]
	if !ok {
		return denied(fmt.Sprintf("unknown resource type %q", resourceType))
	}
	if resourceID == "" {
		return denied("resource id is required")
	}

	owner, err := v.store.LookupOwner(ctx, q.single, resourceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return Result{NotFound: true, Err: "resource not found"}
		}
		v.logger.Error("ownership lookup failed",
			zap.String("resource_type", string(resourceType)),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
		return Result{InternalError: true, Err: "ownership check failed"}
	}

	if owner != userID {
		return Result{OwnerID: owner, Err: "user does not own this resource"}
	}
	return Result{IsOwner: true, OwnerID: owner}
}

// VerifyToolOwnership resolves the resource type for a tool call and checks
// ownership of the referenced resource. Tools without a mapping skip the
// check; mapped tools with no extractable resource id are denied.
func (v *Verifier) VerifyToolOwnership(ctx context.Context, toolName string, input map[string]any, userID string) Result {
	resourceType, mapped := toolResources[toolName]
	if !mapped {
		return Result{IsOwner: true, Skipped: true}
	}

	resourceID := extractResourceID(input)
	if resourceID == "" {
		return denied("no resource id found in tool input")
	}

	return v.VerifyOwnership(ctx, resourceType, resourceID, userID)
}

// Ref identifies one resource in a batched check.
type Ref struct {
	Type ResourceType
	ID   string
}

// VerifyBatch checks ownership for many resources with one IN query per
// resource type. A failure for one type denies only that type's ids.
func (v *Verifier) VerifyBatch(ctx context.Context, refs []Ref, userID string) map[Ref]Result {
	byType := make(map[ResourceType][]string)
	for _, ref := range refs {
		byType[ref.Type] = append(byType[ref.Type], ref.ID)
	}

	results := make(map[Ref]Result, len(refs))
	for resourceType, ids := range byType {
		q, ok := queryRegistry[resourceType]
		if !ok {
			for _, id := range ids {
				results[Ref{resourceType, id}] = denied(fmt.Sprintf("unknown resource type %q", resourceType))
			}
			continue
		}

		owners, err := v.store.LookupOwnersBatch(ctx, q.batch, ids)
		if err != nil {
			v.logger.Error("batched ownership lookup failed",
				zap.String("resource_type", string(resourceType)),
				zap.Int("count", len(ids)),
				zap.Error(err),
			)
			for _, id := range ids {
				results[Ref{resourceType, id}] = Result{InternalError: true, Err: "ownership check failed"}
			}
			continue
		}

		for _, id := range ids {
			owner, found := owners[id]
			switch {
			case !found:
				results[Ref{resourceType, id}] = Result{NotFound: true, Err: "resource not found"}
			case owner != userID:
				results[Ref{resourceType, id}] = Result{OwnerID: owner, Err: "user does not own this resource"}
			default:
				results[Ref{resourceType, id}] = Result{IsOwner: true, OwnerID: owner}
			}
		}
	}
	return results
}

// extractResourceID probes the candidate id params in order. JSON decoding
// yields float64 for numeric ids, so those are accepted alongside strings.
func extractResourceID(input map[string]any) string {
	for _, name := range idParamNames {
		raw, ok := input[name]
		if !ok {
			continue
		}
		switch id := raw.(type) {
		case string:
			if id != "" {
				return id
			}
		case float64:
			return strconv.FormatFloat(id, 'f', -1, 64)
		case int:
			return strconv.Itoa(id)
		}
	}
	return ""
}
