package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"devopsdb/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestStore creates a SQLite database in a temporary directory.
func setupTestStore(t *testing.T) *SQLStore {
	t.Helper()
	gdb, err := OpenSQLite(filepath.Join(t.TempDir(), "devops_db.db"))
	require.NoError(t, err)

	store := NewSQLStore(gdb, nil)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func newTestUser(username, email string) *model.User {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &model.User{
		Username:  username,
		Email:     email,
		Password:  "$2a$10$placeholderplaceholderplaceholderplaceholderplacehold",
		FirstName: "Test",
		LastName:  "User",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLStoreEnsureCollection(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	exists, err := store.CollectionExists(ctx, "users")
	require.NoError(t, err)
	assert.False(t, exists)

	created, err := store.EnsureCollection(ctx, "users")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.EnsureCollection(ctx, "users")
	require.NoError(t, err)
	assert.False(t, created, "second call must be a no-op")

	exists, err = store.CollectionExists(ctx, "users")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLStoreEnsureIndex(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	_, err := store.EnsureCollection(ctx, "users")
	require.NoError(t, err)

	t.Run("creates the index once", func(t *testing.T) {
		spec := model.IndexSpec{Name: "username_1", Field: "username", Order: model.Ascending, Unique: true}

		created, err := store.EnsureIndex(ctx, "users", spec)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = store.EnsureIndex(ctx, "users", spec)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("lists fields and uniqueness", func(t *testing.T) {
		_, err := store.EnsureIndex(ctx, "users", model.IndexSpec{Name: "active_1", Field: "active", Order: model.Ascending})
		require.NoError(t, err)

		infos, err := store.ListIndexes(ctx, "users")
		require.NoError(t, err)
		require.Len(t, infos, 2)

		byField := map[string]model.IndexInfo{}
		for _, info := range infos {
			require.Len(t, info.Fields, 1)
			byField[info.Fields[0]] = info
		}
		assert.True(t, byField["username"].Unique)
		assert.False(t, byField["active"].Unique)
		assert.Equal(t, "users_username_1", byField["username"].Name)
	})

	t.Run("rejects a different definition under the same name", func(t *testing.T) {
		created, err := store.EnsureIndex(ctx, "users", model.IndexSpec{Name: "active_1", Field: "active", Unique: true})
		assert.ErrorIs(t, err, ErrIndexConflict)
		assert.False(t, created)

		_, err = store.EnsureIndex(ctx, "users", model.IndexSpec{Name: "username_1", Field: "email", Unique: true})
		assert.ErrorIs(t, err, ErrIndexConflict)

		infos, err := store.ListIndexes(ctx, "users")
		require.NoError(t, err)
		assert.Len(t, infos, 2)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.False(t, isUniqueViolation(errors.New("UNIQUE constraint failed: users.username")))
	assert.False(t, isUniqueViolation(gorm.ErrRecordNotFound))
}

func TestSQLStoreUsers(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	_, err := store.EnsureCollection(ctx, "users")
	require.NoError(t, err)
	for _, spec := range DefaultIndexes() {
		_, err := store.EnsureIndex(ctx, "users", spec)
		require.NoError(t, err)
	}

	admin := newTestUser("admin", "admin@company.com")
	require.NoError(t, store.InsertUser(ctx, "users", admin))
	assert.NotEmpty(t, admin.ID)

	t.Run("finds a user by username", func(t *testing.T) {
		u, err := store.FindUserByUsername(ctx, "users", "admin")
		require.NoError(t, err)
		assert.Equal(t, admin.ID, u.ID)
		assert.Equal(t, "admin@company.com", u.Email)
		assert.True(t, u.Active)
		assert.Equal(t, admin.Password, u.Password)
		assert.True(t, admin.CreatedAt.Equal(u.CreatedAt))
	})

	t.Run("reports a missing user", func(t *testing.T) {
		u, err := store.FindUserByUsername(ctx, "users", "ghost")
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.Nil(t, u)
	})

	t.Run("rejects a duplicate username", func(t *testing.T) {
		err := store.InsertUser(ctx, "users", newTestUser("admin", "other@company.com"))
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("rejects a duplicate email", func(t *testing.T) {
		err := store.InsertUser(ctx, "users", newTestUser("someone", "admin@company.com"))
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("counts records", func(t *testing.T) {
		count, err := store.CountUsers(ctx, "users")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestSQLStorePing(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.EnsureDatabase(context.Background()))

	var nilStore *SQLStore
	assert.Error(t, nilStore.Ping(context.Background()))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), OpenOptions{Driver: "postgres"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestOpenSQLiteDriver(t *testing.T) {
	store, err := Open(context.Background(), OpenOptions{
		Driver:     DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "open.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	assert.IsType(t, &SQLStore{}, store)
	assert.NoError(t, store.Ping(context.Background()))
}
