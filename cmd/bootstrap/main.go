package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"time"

	"devopsdb/config"
	"devopsdb/db"
	"devopsdb/logging"
	"devopsdb/model"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	rootCmd, err := newRootCmd(viper.New(), os.Stdout)
	if err != nil {
		log.Fatalf("failed to build command: %v", err)
	}
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

// app carries what the persistent pre-run resolves for every sub-command.
type app struct {
	v       *viper.Viper
	out     io.Writer
	cfgFile string
	envFile string
	cfg     *config.Config
	log     *zap.SugaredLogger
}

func newRootCmd(v *viper.Viper, out io.Writer) (*cobra.Command, error) {
	a := &app{v: v, out: out}

	rootCmd := &cobra.Command{
		Use:          "bootstrap",
		Short:        "Bootstrap the users collection, its indexes and seed accounts",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(cmd.Context(), a.cfg, a.log, a.out)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "Path to a YAML config file")
	pf.StringVar(&a.envFile, "env-file", config.DefaultEnvFile, "Dotenv file with DEVOPSDB_* variables, skipped when absent")
	pf.String("driver", config.DefaultDriver, "Database engine: mongo or sqlite")
	pf.String("mongo-uri", config.DefaultMongoURI, "MongoDB connection URI")
	pf.String("database", config.DefaultDatabase, "Database name")
	pf.String("collection", config.DefaultCollection, "Collection holding the user records")
	pf.String("db", config.DefaultSQLitePath, "Path to SQLite database file (sqlite driver)")
	pf.Duration("connect-timeout", config.DefaultConnectTimeout, "Timeout for connecting to the database")
	pf.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	pf.String("log-format", config.DefaultLogFormat, "Log format: console or json")

	f := rootCmd.Flags()
	f.Bool("seed", true, "Whether to load seed data into the database")
	f.Bool("backup", true, "Whether to back up an existing SQLite database file first")
	f.Int("max-backups", config.DefaultMaxBackups, "Maximum number of backups to retain (0 keeps all)")

	if err := bindFlags(v, pf, "driver", "mongo-uri", "database", "collection", "db", "connect-timeout", "log-level", "log-format"); err != nil {
		return nil, err
	}
	if err := bindFlags(v, f, "seed", "backup", "max-backups"); err != nil {
		return nil, err
	}

	rootCmd.AddCommand(newVerifyCmd(a))
	return rootCmd, nil
}

// bindFlags binds each named flag of flags to its config key in v.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		if err := v.BindPFlag(viperKey(name), flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// flagKeys maps flag names onto config keys where the two differ.
var flagKeys = map[string]string{
	"mongo-uri":       "mongo_uri",
	"db":              "sqlite_path",
	"connect-timeout": "connect_timeout",
	"log-level":       "log_level",
	"log-format":      "log_format",
	"max-backups":     "max_backups",
}

func viperKey(flag string) string {
	if k, ok := flagKeys[flag]; ok {
		return k
	}
	return flag
}

func (a *app) init() error {
	envLoaded, err := config.LoadEnvFile(a.envFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.log = logger.Sugar()
	if envLoaded {
		a.log.Debugw("loaded env file", "path", a.envFile)
	}
	return nil
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the collection, its indexes and the seed accounts are in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), a.cfg, a.log, a.out)
		},
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (db.Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	store, err := db.Open(connectCtx, cfg.OpenOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	return store, nil
}

func closeStore(store db.Store, logger *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		logger.Warnw("failed to close database", "error", err)
	}
}

func runBootstrap(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, out io.Writer) error {
	if cfg.Driver == config.DriverSQLite && cfg.Backup {
		if err := backupDatabase(cfg.SQLitePath, cfg.MaxBackups, time.Now(), logger); err != nil {
			return fmt.Errorf("failed to create DB backup: %w", err)
		}
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(store, logger)

	opts := db.Options{
		Collection: cfg.Collection,
		Indexes:    db.DefaultIndexes(),
		Seed:       cfg.Seed,
	}
	if cfg.Seed {
		seeds, err := seedUsers(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if cfg.SeedPassword == "" {
			logger.Warnw("seed_password is not set, seed accounts get a random password and cannot log in")
		}
		opts.Users, err = db.BuildUsers(seeds, cfg.SeedPassword, time.Now().UTC())
		if err != nil {
			return err
		}
	}

	report, err := db.NewBootstrapper(store, logger, opts).Run(ctx)
	if report != nil {
		logger.Infow("bootstrap summary",
			"database", cfg.Database,
			"collection", cfg.Collection,
			"collectionCreated", report.CollectionCreated,
			"indexesCreated", report.IndexesCreated,
			"indexesPresent", report.IndexesPresent,
			"inserted", report.Inserted,
			"skipped", report.Skipped,
		)
	}
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	fmt.Fprintln(out, db.CompletionMessage)
	return nil
}

func seedUsers(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) ([]model.SeedUser, error) {
	seeds := db.DefaultSeedUsers()
	if !cfg.Sheet.Enabled() {
		return seeds, nil
	}
	extra, err := db.LoadSheetSeedUsers(ctx, cfg.Sheet.ID, cfg.Sheet.Range, cfg.Sheet.CredentialsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed users from worksheet: %w", err)
	}
	logger.Infow("loaded seed users from worksheet", "count", len(extra))
	return append(seeds, extra...), nil
}

func runVerify(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, out io.Writer) error {
	// opening a missing SQLite file would create it
	if cfg.Driver == config.DriverSQLite {
		if _, err := os.Stat(cfg.SQLitePath); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(out, "database %s: present=false\n", cfg.SQLitePath)
			return fmt.Errorf("%w: sqlite database %s does not exist", db.ErrVerifyFailed, cfg.SQLitePath)
		}
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(store, logger)

	var usernames []string
	if cfg.Seed {
		usernames = db.Usernames(db.DefaultSeedUsers())
	}

	result, err := db.Verify(ctx, store, cfg.Collection, db.DefaultIndexes(), usernames)
	if result != nil {
		fmt.Fprintf(out, "collection %s: present=%t records=%d\n", cfg.Collection, result.CollectionExists, result.Users)
		for _, ix := range result.Indexes {
			fmt.Fprintf(out, "  index %-24s fields=%v unique=%t\n", ix.Name, ix.Fields, ix.Unique)
		}
		for _, p := range result.Problems {
			fmt.Fprintf(out, "  problem: %s\n", p)
		}
	}
	return err
}
