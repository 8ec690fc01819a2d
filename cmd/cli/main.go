package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/adapters/repository"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/config"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/services"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/logger"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/ports"
)

const usage = "expected 'export', 'import', 'sweep', 'token' or 'report' subcommands"

// Dump is the export / import file format.
type Dump struct {
	Items  []domain.Item  `json:"items"`
	Events []domain.Event `json:"events"`
}

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importFile := importCmd.String("file", "", "JSON file to import")
	sweepCmd := flag.NewFlagSet("sweep", flag.ExitOnError)
	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenSubject := tokenCmd.String("subject", "", "operator identity to embed")
	tokenTTL := tokenCmd.Duration("ttl", 24*time.Hour, "token lifetime")
	reportCmd := flag.NewFlagSet("report", flag.ExitOnError)
	reportDays := reportCmd.Int("days", 0, "trailing window in days (default from REPORT_WINDOW_DAYS)")
	reportTop := reportCmd.Int("top", 0, "rows in the CTR leaderboard (default from REPORT_TOP_N)")

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// token needs no store
	if os.Args[1] == "token" {
		tokenCmd.Parse(os.Args[2:])
		if *tokenSubject == "" {
			tokenCmd.PrintDefaults()
			os.Exit(1)
		}
		token, err := handler.IssueToken(cfg.JWTSecret, *tokenSubject, *tokenTTL)
		if err != nil {
			log.Fatalf("Failed to sign token: %v", err)
		}
		fmt.Println(token)
		return
	}

	zl, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()

	repo, err := repository.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		if err := doExport(ctx, repo, os.Stdout); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
	case "import":
		importCmd.Parse(os.Args[2:])
		if *importFile == "" {
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		file, err := os.Open(*importFile)
		if err != nil {
			log.Fatalf("Failed to open file: %v", err)
		}
		defer file.Close()
		items, events, err := doImport(ctx, repo, file, zl)
		if err != nil {
			log.Fatalf("Import failed: %v", err)
		}
		zl.Info("import finished", zap.Int("items", items), zap.Int("events", events))
	case "sweep":
		sweepCmd.Parse(os.Args[2:])
		n, err := repo.PurgeOrphanEvents(ctx)
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		zl.Info("orphan events removed", zap.Int64("count", n))
	case "report":
		reportCmd.Parse(os.Args[2:])
		loc, err := cfg.Location()
		if err != nil {
			log.Fatal(err)
		}
		days, top := *reportDays, *reportTop
		if days == 0 {
			days = cfg.ReportWindowDays
		}
		if top == 0 {
			top = cfg.ReportTopN
		}
		reports := services.NewReportService(repo, zl, services.ReportOptions{Location: loc})
		rep, err := reports.ComputeReport(ctx, days, top)
		if err != nil {
			log.Fatalf("Report failed: %v", err)
		}
		if err := writeJSON(os.Stdout, rep); err != nil {
			log.Fatalf("Encode failed: %v", err)
		}
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

func doExport(ctx context.Context, repo ports.ItemRepository, w io.Writer) error {
	items, err := repo.ListItems(ctx)
	if err != nil {
		return err
	}
	events, err := repo.ListEvents(ctx)
	if err != nil {
		return err
	}
	domain.SortItemsByCode(items)
	return writeJSON(w, Dump{Items: items, Events: events})
}

// doImport inserts items whose code is free along with their events.
// Existing codes are skipped together with their events.
func doImport(ctx context.Context, repo ports.ItemRepository, r io.Reader, zl *zap.Logger) (int, int, error) {
	var dump Dump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return 0, 0, fmt.Errorf("decode: %w", err)
	}

	now := time.Now().UTC()
	owners := make(map[string]string, len(dump.Items))
	imported := 0
	for i := range dump.Items {
		it := dump.Items[i]
		oldID := it.ID
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		if it.UpdatedAt.IsZero() {
			it.UpdatedAt = it.CreatedAt
		}

		err := repo.CreateItem(ctx, &it)
		var dupID *domain.DuplicateIDError
		if errors.As(err, &dupID) {
			// the code is free but the id belongs to another item
			it.ID = uuid.NewString()
			err = repo.CreateItem(ctx, &it)
		}
		var dup *domain.DuplicateCodeError
		switch {
		case errors.As(err, &dup):
			zl.Info("skipping existing code", zap.String("code", it.Code))
		case err != nil:
			return imported, 0, fmt.Errorf("import code %s: %w", it.Code, err)
		default:
			imported++
			if oldID != "" {
				owners[oldID] = it.ID
			}
		}
	}

	events := make([]domain.Event, 0, len(dump.Events))
	for _, ev := range dump.Events {
		owner, ok := owners[ev.ItemID]
		if !ok {
			continue
		}
		ev.ItemID = owner
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		events = append(events, ev)
	}
	if len(events) > 0 {
		if err := repo.AppendEvents(ctx, events); err != nil {
			return imported, 0, fmt.Errorf("append events: %w", err)
		}
	}
	return imported, len(events), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
