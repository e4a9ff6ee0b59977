// Command customer-import loads migrated customers from gzip compressed
// NDJSON files. Each line is {"name":...,"email":...,"tier":...}; tier is
// optional. An email present in several files is imported from the first
// file in name order, later occurrences are skipped.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		capacity    uint
	)
	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.ndjson.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&capacity, "capacity", 1_000_000, "expected records per file, sizes the bloom filters")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, databaseURL, capacity); err != nil {
		lg.Fatal("Customer import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string, capacity uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.ndjson.gz"))
	if err != nil {
		return errors.Wrap(err, "list files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.ndjson.gz files in %s", dataDir)
	}
	sort.Strings(files)

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	imp := &importer{
		lg:        lg,
		customers: customer.NewService(postgres.NewCustomerRepository(pool)),
		capacity:  capacity,
	}
	report, err := imp.Import(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Customer import completed",
		zap.Int64("records", report.Records.Load()),
		zap.Int64("imported", report.Imported.Load()),
		zap.Int64("duplicates", report.Duplicates.Load()),
		zap.Int64("invalid", report.Invalid.Load()),
		zap.Int("cross_file_emails", report.CrossFile),
	)
	return nil
}
