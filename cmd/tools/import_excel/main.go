package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"asset-lending-api/internal/config"
	"asset-lending-api/internal/database"
	"asset-lending-api/internal/handlers"
	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/logger"
	"asset-lending-api/internal/models"
	"asset-lending-api/internal/store/postgres"
	"asset-lending-api/pkg/importer"

	"github.com/joho/godotenv"
)

func main() {
	var (
		filePath    = flag.String("file", "", "Path to the .xlsx workbook")
		mappingPath = flag.String("mapping", "", "YAML column mapping (default: "+importer.DefaultMappingPath+" when present)")
		staffUser   = flag.String("staff", "", "Username of the STAFF account recorded as creator")
		dryRun      = flag.Bool("dry-run", false, "Validate rows without creating assets")
		maxErrors   = flag.Int("max-errors", 50, "Stop after this many row errors")
	)
	flag.Parse()

	if *filePath == "" || *staffUser == "" {
		fmt.Println("Usage: import_excel -file=path.xlsx -staff=username [-mapping=...] [-dry-run]")
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}
	cfg := config.Load()
	zlog := logger.MustNew(cfg.Environment)
	defer zlog.Sync()

	mapping := importer.DefaultMapping()
	path := *mappingPath
	if path == "" {
		if _, err := os.Stat(importer.DefaultMappingPath); err == nil {
			path = importer.DefaultMappingPath
		}
	}
	if path != "" {
		m, err := importer.LoadMapping(path)
		if err != nil {
			log.Fatalf("Invalid mapping: %v", err)
		}
		mapping = m
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	st := postgres.New(db)

	staff, err := st.FindUserByUsername(ctx, *staffUser)
	if err != nil {
		log.Fatalf("Failed to find staff user %q: %v", *staffUser, err)
	}
	if staff.Role != models.RoleStaff {
		log.Fatalf("User %q is %s, not STAFF", staff.Username, staff.Role)
	}

	file, err := os.Open(*filePath)
	if err != nil {
		log.Fatalf("Failed to open Excel file: %v", err)
	}
	defer file.Close()

	registry := lending.NewRegistry(st, nil,
		lending.WithTimeout(cfg.StoreTimeout),
		lending.WithObserver(logger.NewObserver(zlog)),
	)

	fmt.Printf("Importing from %s as %s (dry_run=%v)\n", *filePath, staff.Username, *dryRun)
	fmt.Println("=" + strings.Repeat("=", 60))

	summary, err := importer.ImportAssets(ctx, handlers.RegistrySink(registry, staff.ID), file, importer.ImportOptions{
		Mapping:   mapping,
		DryRun:    *dryRun,
		MaxErrors: *maxErrors,
	})

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("IMPORT SUMMARY")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("Total inserted: %d\n", summary.Inserted)
	fmt.Printf("Total skipped: %d\n", summary.Skipped)
	fmt.Printf("Total errors: %d\n", summary.Errors)
	fmt.Printf("Dry run: %v\n", summary.DryRun)

	if len(summary.Sheets) > 0 {
		fmt.Println("\nSheet Details:")
		for _, sheet := range summary.Sheets {
			fmt.Printf("  %s: inserted=%d, skipped=%d, errors=%d\n",
				sheet.Name, sheet.Inserted, sheet.Skipped, sheet.Errors)
			if len(sheet.Codes) > 0 {
				fmt.Printf("    Codes: %s\n", strings.Join(sheet.Codes, ", "))
			}
			if len(sheet.Samples) > 0 {
				fmt.Printf("    Error samples:\n")
				for _, sample := range sheet.Samples {
					fmt.Printf("      Row %d: %s\n", sample.Row, sample.Message)
				}
			}
		}
	}

	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
}
