package db

import (
	"context"
	"errors"
	"fmt"

	"devopsdb/model"

	"go.uber.org/zap"
)

const (
	DefaultDatabase   = "devops_db"
	DefaultCollection = "users"

	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

var (
	// ErrDuplicateKey is returned when an insert violates a unique index.
	ErrDuplicateKey      = errors.New("duplicate key")
	// ErrIndexConflict is returned when an index of the requested name exists
	// over other fields or with another uniqueness.
	ErrIndexConflict     = errors.New("index exists with a different definition")
	ErrUserNotFound      = errors.New("user not found")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Store is the handle to a database engine that the Bootstrapper drives.
// Every Ensure* call is idempotent: it reports whether it created anything
// and returns a nil error when the object already exists. EnsureIndex fails
// with ErrIndexConflict when the name is taken by a different definition.
type Store interface {
	EnsureDatabase(ctx context.Context) error
	EnsureCollection(ctx context.Context, name string) (bool, error)
	CollectionExists(ctx context.Context, name string) (bool, error)
	EnsureIndex(ctx context.Context, collection string, spec model.IndexSpec) (bool, error)
	ListIndexes(ctx context.Context, collection string) ([]model.IndexInfo, error)
	InsertUser(ctx context.Context, collection string, user *model.User) error
	FindUserByUsername(ctx context.Context, collection, username string) (*model.User, error)
	CountUsers(ctx context.Context, collection string) (int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// OpenOptions selects and addresses a Store implementation.
type OpenOptions struct {
	Driver     string
	MongoURI   string
	Database   string
	SQLitePath string
}

// Open connects to the engine named by opts.Driver.
func Open(ctx context.Context, opts OpenOptions, logger *zap.SugaredLogger) (Store, error) {
	switch opts.Driver {
	case DriverMongo:
		store, err := ConnectMongo(ctx, opts.MongoURI, opts.Database, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverSQLite:
		gdb, err := OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(gdb, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}
}
