// Package main provides a CLI tool for seeding the database. Every seeder is
// guarded by the seed ledger, so running it twice is harmless.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"stockwise/internal/app"
	"stockwise/internal/domain/seeding"
	"stockwise/internal/domain/seeding/seeders"
	"stockwise/internal/infrastructure/config"
	"stockwise/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithLogger(ctx, log)

	switch os.Args[1] {
	case "run":
		err = runSeeders(ctx, cfg, log, os.Args[2:])
	case "lock":
		err = lockSeeder(ctx, cfg, log, os.Args[2:])
	case "status":
		err = showStatus(ctx, cfg, log, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Errorw("seed command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: seed <command> [options]

Commands:
  run [--force] [--lock] [--env ENV] [--count N] [--faker-seed N] [seeder...]
        Run seeders (default: units topology demo)
  lock [--env ENV] <seeder>
        Lock a seeder that already ran so it never runs again
  status [--env ENV]
        List the seed ledger`)
}

func open(ctx context.Context, cfg *config.Config, log *logger.Logger, env string) (*app.App, error) {
	if env != "" {
		cfg.App.Env = env
	}
	if cfg.Database.RunMigrations {
		if err := app.Migrate(cfg, log); err != nil {
			return nil, err
		}
	}
	return app.New(ctx, cfg, log, nil)
}

func registry(a *app.App, count int, fakerSeed uint64) map[string]seeding.Seeder {
	all := []seeding.Seeder{
		&seeders.Units{Units: a.Units, Conversions: a.Conversions},
		&seeders.Topology{OperatingUnits: a.OperatingUnits, Locations: a.Locations},
		&seeders.Demo{
			Units:     a.Units,
			Locations: a.Locations,
			Items:     a.Items,
			Variants:  a.Variants,
			Movements: a.Processor,
			Count:     count,
			FakerSeed: fakerSeed,
		},
	}
	out := make(map[string]seeding.Seeder, len(all))
	for _, s := range all {
		out[s.Name()] = s
	}
	return out
}

var defaultOrder = []string{"units", "topology", "demo"}

func runSeeders(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	force := fs.Bool("force", false, "re-run seeders that already ran")
	lock := fs.Bool("lock", false, "lock seeders after running")
	env := fs.String("env", "", "environment (defaults to app.env)")
	count := fs.Int("count", 10, "number of demo items")
	fakerSeed := fs.Uint64("faker-seed", 0, "seed for demo data; 0 is random")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := open(ctx, cfg, log, *env)
	if err != nil {
		return err
	}
	defer a.Close()

	names := fs.Args()
	if len(names) == 0 {
		names = defaultOrder
	}
	available := registry(a, *count, *fakerSeed)

	for _, name := range names {
		s, ok := available[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("unknown seeder %q (have %s)", name, strings.Join(defaultOrder, ", "))
		}
		outcome, err := a.Seeds.Run(ctx, s, seeding.RunOptions{Force: *force, Lock: *lock})
		if err != nil {
			return err
		}
		fmt.Printf("%-10s %s\n", s.Name(), outcome)
	}
	return nil
}

func lockSeeder(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	env := fs.String("env", "", "environment (defaults to app.env)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("lock takes exactly one seeder name")
	}

	a, err := open(ctx, cfg, log, *env)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Seeds.Lock(ctx, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Printf("%s locked\n", fs.Arg(0))
	return nil
}

func showStatus(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	env := fs.String("env", "", "environment (defaults to app.env)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := open(ctx, cfg, log, *env)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.Seeds.Status(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEEDER\tSTATE\tRUNS\tRAN AT\tLOCKED AT\tCHECKSUM")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", r.Name, r.State, r.RunCount, formatTime(r.RanAt), formatTime(r.LockedAt), r.Checksum)
	}
	return tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
