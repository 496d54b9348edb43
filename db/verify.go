package db

import (
	"context"
	"errors"
	"fmt"

	"devopsdb/model"
)

var ErrVerifyFailed = errors.New("database layout does not match")

// VerifyResult describes the layout found in the database.
type VerifyResult struct {
	CollectionExists bool
	Indexes          []model.IndexInfo
	Users            int64
	Problems         []string
}

// Verify checks that collection exists with the expected indexes and that
// each of usernames is present, active and has a password hash. It returns
// ErrVerifyFailed alongside the result when anything is off.
func Verify(ctx context.Context, store Store, collection string, indexes []model.IndexSpec, usernames []string) (*VerifyResult, error) {
	result := &VerifyResult{}

	exists, err := store.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	result.CollectionExists = exists
	if !exists {
		result.Problems = append(result.Problems, fmt.Sprintf("collection %s is missing", collection))
		return result, ErrVerifyFailed
	}

	result.Indexes, err = store.ListIndexes(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	for _, spec := range indexes {
		if !hasEquivalentIndex(result.Indexes, spec) {
			result.Problems = append(result.Problems,
				fmt.Sprintf("index on %s (unique=%t) is missing", spec.Field, spec.Unique))
		}
	}

	result.Users, err = store.CountUsers(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	for _, name := range usernames {
		u, err := store.FindUserByUsername(ctx, collection, name)
		if errors.Is(err, ErrUserNotFound) {
			result.Problems = append(result.Problems, fmt.Sprintf("user %s is missing", name))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
		if !u.Active {
			result.Problems = append(result.Problems, fmt.Sprintf("user %s is not active", name))
		}
		if u.Password == "" {
			result.Problems = append(result.Problems, fmt.Sprintf("user %s has no password hash", name))
		}
	}

	if len(result.Problems) > 0 {
		return result, ErrVerifyFailed
	}
	return result, nil
}
