// Command migrate manages the ledger schema (loyalty and loyalty_transaction).
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/loyalty/backend/internal/infrastructure/config"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/infrastructure/migration"
	"github.com/loyalty/backend/migrations"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

// session is what a command may use; migrator is nil for file commands
type session struct {
	log      *zap.Logger
	dir      string
	migrator *migration.Migrator
}

type command struct {
	needsDB bool
	minArgs int
	run     func(s *session, args []string) error
}

var commands = map[string]command{
	"up":   {needsDB: true, run: func(s *session, _ []string) error { return s.migrator.Up() }},
	"down": {needsDB: true, run: func(s *session, _ []string) error { return s.migrator.Down() }},
	"step": {needsDB: true, minArgs: 1, run: func(s *session, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return s.migrator.Steps(n)
	}},
	"goto": {needsDB: true, minArgs: 1, run: func(s *session, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return s.migrator.GoTo(uint(version))
	}},
	"force": {needsDB: true, minArgs: 1, run: func(s *session, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return s.migrator.Force(version)
	}},
	"version": {needsDB: true, run: func(s *session, _ []string) error {
		version, dirty, err := s.migrator.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			s.log.Info("No migrations applied")
			return nil
		}
		s.log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	}},
	"drop": {needsDB: true, run: func(s *session, args []string) error {
		if !slices.Contains(args, "-confirm") && !slices.Contains(args, "--confirm") {
			return errors.New("drop cancelled, run 'migrate drop -confirm' to confirm")
		}
		return s.migrator.Drop()
	}},
	"create": {minArgs: 1, run: func(s *session, args []string) error {
		description := ""
		if len(args) > 1 {
			description = args[1]
		}
		mf, err := migration.CreateMigration(s.dir, args[0], description)
		if err != nil {
			return err
		}
		s.log.Info("Migration created",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return nil
	}},
	"list": {run: func(s *session, _ []string) error {
		names, err := migration.ListMigrations(s.dir)
		if err != nil {
			return err
		}
		s.log.Info("Available migrations", zap.String("dir", s.dir), zap.Int("count", len(names)))
		for _, name := range names {
			fmt.Println("  -", name)
		}
		return nil
	}},
}

func main() {
	var (
		migrationsPath string
		logLevel       string
	)
	flag.StringVar(&migrationsPath, "path", "", "Path to migrations directory (default: migrations embedded in the binary)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	name, args := args[0], args[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
		printUsage()
		os.Exit(1)
	}
	if len(args) < cmd.minArgs {
		fmt.Fprintf(os.Stderr, "Command %q needs %d argument(s)\n\n", name, cmd.minArgs)
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log = log.With(zap.String("command", name))

	if err := run(log, cmd, migrationsPath, args); err != nil {
		log.Error("Migration command failed", zap.Error(err))
		logger.Sync(log)
		os.Exit(1)
	}
	logger.Sync(log)
}

func run(log *zap.Logger, cmd command, migrationsPath string, args []string) error {
	dir := migrationsPath
	if dir == "" {
		dir = defaultMigrationsPath
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations path: %w", err)
	}
	s := &session{log: log, dir: dir}
	if !cmd.needsDB {
		return cmd.run(s, args)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	db, err := migration.OpenDB(cfg.Database.DSN())
	if err != nil {
		return err
	}

	if migrationsPath == "" {
		log.Info("Using embedded migrations")
		s.migrator, err = migration.NewFromFS(db, migrations.FS, log)
	} else {
		log.Info("Using migrations directory", zap.String("path", dir))
		s.migrator, err = migration.New(db, dir, log)
	}
	if err != nil {
		_ = db.Close()
		return err
	}
	defer s.migrator.Close()

	return cmd.run(s, args)
}

func printUsage() {
	fmt.Println(`Loyalty ledger schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (negative rolls back)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  force <version>       Set the version without running migrations
  drop -confirm         Drop every table of the ledger database
  create <name> [desc]  Create the next numbered migration pair
  list                  List migrations in the migrations directory

Flags:
  -path string          Migrations directory (default: embedded migrations;
                        create and list use ./migrations)
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables:
  LOYALTY_DATABASE_URL or DATABASE_URL
  LOYALTY_DATABASE_HOST, LOYALTY_DATABASE_PORT, LOYALTY_DATABASE_USER,
  LOYALTY_DATABASE_PASSWORD, LOYALTY_DATABASE_DBNAME, LOYALTY_DATABASE_SSLMODE

Examples:
  migrate up
  migrate step -1
  migrate create add_history_index "Index transactions by date"`)
}
