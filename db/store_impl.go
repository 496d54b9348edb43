package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"devopsdb/model"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// userRow is the relational shape of a User. Column names follow the
// document field names so that an IndexSpec addresses both engines alike.
type userRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Username  string    `gorm:"column:username;size:100;not null"`
	Email     string    `gorm:"column:email;size:254;not null"`
	Password  string    `gorm:"column:password;size:100;not null"`
	FirstName string    `gorm:"column:firstName;size:100"`
	LastName  string    `gorm:"column:lastName;size:100"`
	Active    bool      `gorm:"column:active"`
	CreatedAt time.Time `gorm:"column:createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt"`
}

func newUserRow(u *model.User) userRow {
	return userRow{
		Username:  u.Username,
		Email:     u.Email,
		Password:  u.Password,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (r userRow) toModel() *model.User {
	return &model.User{
		ID:        strconv.FormatUint(uint64(r.ID), 10),
		Username:  r.Username,
		Email:     r.Email,
		Password:  r.Password,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// SQLStore keeps collections as SQLite tables. The database is the file
// itself, so EnsureDatabase only has to check the connection.
type SQLStore struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewSQLStore(db *gorm.DB, logger *zap.SugaredLogger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SQLStore{db: db, log: logger}
}

// OpenSQLite opens (creating if absent) the SQLite file at dbPath.
func OpenSQLite(dbPath string) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second,   // Slow SQL threshold
			LogLevel:                  logger.Silent, // Log level
			IgnoreRecordNotFoundError: true,          // Ignore ErrRecordNotFound error for logger
			ParameterizedQueries:      true,          // Don't include params in the SQL log
			Colorful:                  false,         // Disable color
		},
	)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Ping verifies the underlying database connection is healthy.
func (s *SQLStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sql store is not initialized")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close(_ context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) EnsureDatabase(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("sqlite database unavailable: %w", err)
	}
	return nil
}

func (s *SQLStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	return s.db.WithContext(ctx).Migrator().HasTable(name), nil
}

func (s *SQLStore) EnsureCollection(ctx context.Context, name string) (bool, error) {
	tx := s.db.WithContext(ctx)
	if tx.Migrator().HasTable(name) {
		return false, nil
	}
	if err := tx.Table(name).Migrator().CreateTable(&userRow{}); err != nil {
		// another process may have created it in between
		if tx.Migrator().HasTable(name) {
			return false, nil
		}
		return false, fmt.Errorf("creating table %s: %w", name, err)
	}
	return true, nil
}

// indexName namespaces the index by table, SQLite index names being global
// to the schema.
func indexName(collection string, spec model.IndexSpec) string {
	return collection + "_" + spec.Name
}

func (s *SQLStore) EnsureIndex(ctx context.Context, collection string, spec model.IndexSpec) (bool, error) {
	name := indexName(collection, spec)
	tx := s.db.WithContext(ctx)

	existing, err := s.ListIndexes(ctx, collection)
	if err != nil {
		return false, err
	}
	for _, info := range existing {
		if info.Name != name {
			continue
		}
		if !info.Matches(spec) {
			return false, fmt.Errorf("%w: %s covers %v (unique=%t), want %s (unique=%t)",
				ErrIndexConflict, name, info.Fields, info.Unique, spec.Field, spec.Unique)
		}
		return false, nil
	}

	unique := ""
	if spec.Unique {
		unique = "UNIQUE "
	}
	order := "ASC"
	if spec.Order == model.Descending {
		order = "DESC"
	}
	stmt := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %q ON %q (%q %s)", unique, name, collection, spec.Field, order)
	if err := tx.Exec(stmt).Error; err != nil {
		return false, fmt.Errorf("creating index %s: %w", name, err)
	}
	return true, nil
}

type indexListRow struct {
	Seq     int
	Name    string
	Unique  int
	Origin  string
	Partial int
}

type indexColumnRow struct {
	Seqno int
	Cid   int
	Name  string
}

// ListIndexes reports the declared indexes on collection. Indexes SQLite
// creates implicitly for a primary key are left out.
func (s *SQLStore) ListIndexes(ctx context.Context, collection string) ([]model.IndexInfo, error) {
	tx := s.db.WithContext(ctx)

	var rows []indexListRow
	if err := tx.Raw(fmt.Sprintf("PRAGMA index_list(%q)", collection)).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing indexes on %s: %w", collection, err)
	}

	infos := make([]model.IndexInfo, 0, len(rows))
	for _, r := range rows {
		if r.Origin == "pk" {
			continue
		}
		var cols []indexColumnRow
		if err := tx.Raw(fmt.Sprintf("PRAGMA index_info(%q)", r.Name)).Scan(&cols).Error; err != nil {
			return nil, fmt.Errorf("reading index %s: %w", r.Name, err)
		}
		fields := make([]string, 0, len(cols))
		for _, c := range cols {
			fields = append(fields, c.Name)
		}
		infos = append(infos, model.IndexInfo{
			Name:   r.Name,
			Fields: fields,
			Unique: r.Unique != 0,
		})
	}
	return infos, nil
}

func (s *SQLStore) InsertUser(ctx context.Context, collection string, user *model.User) error {
	row := newUserRow(user)
	err := s.db.WithContext(ctx).Table(collection).Create(&row).Error
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: inserting %s: %v", ErrDuplicateKey, user.Username, err)
		}
		return fmt.Errorf("inserting %s: %w", user.Username, err)
	}
	user.ID = strconv.FormatUint(uint64(row.ID), 10)
	return nil
}

func (s *SQLStore) FindUserByUsername(ctx context.Context, collection, username string) (*model.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Table(collection).Where("username = ?", username).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (s *SQLStore) CountUsers(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Table(collection).Count(&count).Error
	return count, err
}

// isUniqueViolation relies on OpenSQLite enabling TranslateError.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
