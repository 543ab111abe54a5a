// Package main generates a trade performance report from stored trades:
// a Markdown summary plus a CSV breakdown by setup and instrument.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"sst-bot/internal/report"
	"sst-bot/internal/storage"
	"sst-bot/internal/storage/migrations"
	pgstore "sst-bot/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	outputDir := flag.String("output-dir", "output", "Output directory for generated files")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	days := flag.Int("days", 30, "Reporting period in days, ending now")
	flag.Parse()

	ctx := context.Background()

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required")
		os.Exit(1)
	}

	trades, cleanup, err := createTradeStore(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -*days)

	summary, err := report.NewGenerator(trades).Generate(ctx, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	mdPath := filepath.Join(*outputDir, "PERFORMANCE.md")
	csvPath := filepath.Join(*outputDir, "performance.csv")
	if err := os.WriteFile(mdPath, []byte(report.RenderMarkdown(summary)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", mdPath, err)
		os.Exit(1)
	}
	if err := os.WriteFile(csvPath, []byte(report.RenderCSV(summary)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", csvPath, err)
		os.Exit(1)
	}

	fmt.Println("Report generated successfully:")
	fmt.Printf("  - %s\n", mdPath)
	fmt.Printf("  - %s\n", csvPath)
}

func createTradeStore(ctx context.Context, dsn string) (storage.TradeStore, func(), error) {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pgstore.NewTradeStore(pool), pool.Close, nil
}
