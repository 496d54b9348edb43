package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"devopsdb/db"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "DEVOPSDB"

	DriverMongo  = db.DriverMongo
	DriverSQLite = db.DriverSQLite

	DefaultDriver         = DriverMongo
	DefaultMongoURI       = "mongodb://localhost:27017"
	DefaultDatabase       = db.DefaultDatabase
	DefaultCollection     = db.DefaultCollection
	DefaultSQLitePath     = "devops_db.db"
	DefaultConnectTimeout = 30 * time.Second
	DefaultMaxBackups     = 5
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultSheetRange     = db.DefaultSheetRange
	DefaultEnvFile        = ".env"
)

// Sheet addresses an optional worksheet of extra seed accounts.
type Sheet struct {
	ID              string `mapstructure:"id"`
	Range           string `mapstructure:"range"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// Enabled reports whether both the worksheet and its credentials are set.
func (s Sheet) Enabled() bool {
	return s.ID != "" && s.CredentialsFile != ""
}

type Config struct {
	Driver         string        `mapstructure:"driver"`
	MongoURI       string        `mapstructure:"mongo_uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	Seed         bool   `mapstructure:"seed"`
	SeedPassword string `mapstructure:"seed_password"`
	Sheet        Sheet  `mapstructure:"sheet"`

	// SQLite file backups taken before a run
	Backup     bool `mapstructure:"backup"`
	MaxBackups int  `mapstructure:"max_backups"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// SetDefaults registers every key so that AutomaticEnv can resolve it
// during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("driver", DefaultDriver)
	v.SetDefault("mongo_uri", DefaultMongoURI)
	v.SetDefault("database", DefaultDatabase)
	v.SetDefault("collection", DefaultCollection)
	v.SetDefault("sqlite_path", DefaultSQLitePath)
	v.SetDefault("connect_timeout", DefaultConnectTimeout)
	v.SetDefault("seed", true)
	v.SetDefault("seed_password", "")
	v.SetDefault("sheet.id", "")
	v.SetDefault("sheet.range", DefaultSheetRange)
	v.SetDefault("sheet.credentials_file", "")
	v.SetDefault("backup", true)
	v.SetDefault("max_backups", DefaultMaxBackups)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
}

// LoadEnvFile exports the variables of a dotenv file into the process
// environment. Variables already set are left alone, and a missing file is
// not an error.
func LoadEnvFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return true, nil
}

// Load resolves configuration from defaults, the optional YAML file at
// configPath and DEVOPSDB_* environment variables, in increasing priority.
// Flags bound to v with BindPFlag take precedence over all of them.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Driver {
	case DriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			errs = append(errs, fmt.Errorf("mongo_uri is required for the mongo driver"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, fmt.Errorf("sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("driver must be '%s' or '%s', got %q", DriverMongo, DriverSQLite, c.Driver))
	}

	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, fmt.Errorf("database is required"))
	}
	if strings.TrimSpace(c.Collection) == "" {
		errs = append(errs, fmt.Errorf("collection is required"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive"))
	}
	if c.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("max_backups cannot be negative"))
	}
	if (c.Sheet.ID == "") != (c.Sheet.CredentialsFile == "") {
		errs = append(errs, fmt.Errorf("sheet.id and sheet.credentials_file must be set together"))
	}

	return errors.Join(errs...)
}

// OpenOptions addresses the configured database engine.
func (c *Config) OpenOptions() db.OpenOptions {
	return db.OpenOptions{
		Driver:     c.Driver,
		MongoURI:   c.MongoURI,
		Database:   c.Database,
		SQLitePath: c.SQLitePath,
	}
}
