package db

import (
	"context"
	"errors"
	"fmt"

	"devopsdb/model"

	"go.uber.org/zap"
)

// CompletionMessage is printed once a bootstrap run finishes.
const CompletionMessage = "Database initialization completed!"

// Options controls what a Bootstrapper sets up.
type Options struct {
	Collection string
	Indexes    []model.IndexSpec
	Users      []model.User
	// Seed disables the insert step when false, leaving only the schema.
	Seed bool
}

// Report records what a run changed and what it found already in place.
type Report struct {
	CollectionCreated bool
	IndexesCreated    []string
	IndexesPresent    []string
	Inserted          []string
	Skipped           []string
}

// Bootstrapper brings a database to a known layout: one collection, its
// indexes and its seed records. Running it again leaves the end state as is.
type Bootstrapper struct {
	store Store
	log   *zap.SugaredLogger
	opts  Options
}

func NewBootstrapper(store Store, logger *zap.SugaredLogger, opts Options) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	return &Bootstrapper{store: store, log: logger, opts: opts}
}

// Run executes the setup steps in order. Failing to reach the database or
// create the collection aborts the run. Index and insert failures are
// collected and returned together once every step has been attempted.
// Duplicate keys while seeding are expected on reruns and are not errors.
func (b *Bootstrapper) Run(ctx context.Context) (*Report, error) {
	coll := b.opts.Collection
	report := &Report{}

	if err := b.store.EnsureDatabase(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: ensure database: %w", err)
	}

	created, err := b.store.EnsureCollection(ctx, coll)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: ensure collection %s: %w", coll, err)
	}
	report.CollectionCreated = created
	if created {
		b.log.Infow("collection created", "collection", coll)
	} else {
		b.log.Infow("collection already present", "collection", coll)
	}

	var errs []error

	existing, err := b.store.ListIndexes(ctx, coll)
	if err != nil {
		return report, fmt.Errorf("bootstrap: list indexes on %s: %w", coll, err)
	}
	for _, spec := range b.opts.Indexes {
		if hasEquivalentIndex(existing, spec) {
			report.IndexesPresent = append(report.IndexesPresent, spec.Name)
			b.log.Debugw("equivalent index already present", "collection", coll, "index", spec.Name)
			continue
		}
		created, err := b.store.EnsureIndex(ctx, coll, spec)
		if err != nil {
			b.log.Errorw("failed to create index", "collection", coll, "index", spec.Name, "error", err)
			errs = append(errs, fmt.Errorf("bootstrap: index %s: %w", spec.Name, err))
			continue
		}
		if created {
			report.IndexesCreated = append(report.IndexesCreated, spec.Name)
			b.log.Infow("index created", "collection", coll, "index", spec.Name, "field", spec.Field, "unique", spec.Unique)
		} else {
			report.IndexesPresent = append(report.IndexesPresent, spec.Name)
		}
	}

	if !b.opts.Seed {
		b.log.Infow("database schema created but no seed data loaded", "collection", coll)
		return report, errors.Join(errs...)
	}

	for _, u := range b.opts.Users {
		user := u
		err := b.store.InsertUser(ctx, coll, &user)
		switch {
		case errors.Is(err, ErrDuplicateKey):
			report.Skipped = append(report.Skipped, user.Username)
			b.log.Warnw("seed record already present, skipping", "collection", coll, "username", user.Username)
		case err != nil:
			b.log.Errorw("failed to insert seed record", "collection", coll, "username", user.Username, "error", err)
			errs = append(errs, fmt.Errorf("bootstrap: seed %s: %w", user.Username, err))
		default:
			report.Inserted = append(report.Inserted, user.Username)
			b.log.Infow("seed record inserted", "collection", coll, "username", user.Username)
		}
	}

	return report, errors.Join(errs...)
}

func hasEquivalentIndex(existing []model.IndexInfo, spec model.IndexSpec) bool {
	for _, info := range existing {
		if info.Matches(spec) {
			return true
		}
	}
	return false
}

// BootstrapSQLite opens the SQLite file at dbPath and bootstraps it. The
// store is returned open only when the run succeeds; on failure it is closed
// and the partial report comes back with the error.
func BootstrapSQLite(ctx context.Context, dbPath string, opts Options, logger *zap.SugaredLogger) (*SQLStore, *Report, error) {
	gdb, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, nil, err
	}
	store := NewSQLStore(gdb, logger)

	report, err := NewBootstrapper(store, logger, opts).Run(ctx)
	if err != nil {
		if cErr := store.Close(ctx); cErr != nil {
			store.log.Warnw("failed to close database", "path", dbPath, "error", cErr)
		}
		return nil, report, err
	}
	return store, report, nil
}
