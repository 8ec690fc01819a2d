package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
)

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src, err := sqlite.NewSQLiteRepository("file:cli_src?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	src.CreateItem(ctx, &domain.Item{ID: "a", Code: "10", DestinationURL: "https://shop.example/a", CreatedAt: ts, UpdatedAt: ts})
	src.CreateItem(ctx, &domain.Item{ID: "b", Code: "2", DestinationURL: "https://shop.example/b", CreatedAt: ts, UpdatedAt: ts})
	src.AppendEvents(ctx, []domain.Event{
		{ID: "e1", ItemID: "a", Type: domain.EventEntry, Timestamp: ts},
		{ID: "e2", ItemID: "b", Type: domain.EventClick, Timestamp: ts},
	})

	var buf bytes.Buffer
	if err := doExport(ctx, src, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	var dump Dump
	if err := json.Unmarshal(buf.Bytes(), &dump); err != nil {
		t.Fatal(err)
	}
	if len(dump.Items) != 2 || dump.Items[0].Code != "2" || len(dump.Events) != 2 {
		t.Fatalf("dump = %+v", dump)
	}

	dst, err := sqlite.NewSQLiteRepository("file:cli_dst?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()
	// Code 10 is already taken on the target; it and its events are skipped.
	dst.CreateItem(ctx, &domain.Item{ID: "z", Code: "10", DestinationURL: "https://other.example", CreatedAt: ts, UpdatedAt: ts})

	items, events, err := doImport(ctx, dst, strings.NewReader(buf.String()), zap.NewNop())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if items != 1 || events != 1 {
		t.Errorf("imported items/events = %d/%d, want 1/1", items, events)
	}

	got, err := dst.GetItemByCode(ctx, "10")
	if err != nil || got.ID != "z" {
		t.Errorf("existing item replaced: %+v %v", got, err)
	}
	evs, _ := dst.ListEvents(ctx)
	if len(evs) != 1 || evs[0].ItemID != "b" {
		t.Errorf("events = %+v", evs)
	}

	// Importing the same file again changes nothing.
	items, events, err = doImport(ctx, dst, strings.NewReader(buf.String()), zap.NewNop())
	if err != nil || items != 0 || events != 0 {
		t.Errorf("reimport = %d/%d, %v", items, events, err)
	}
}

func TestImportReassignsTakenID(t *testing.T) {
	ctx := context.Background()
	dst, err := sqlite.NewSQLiteRepository("file:cli_ids?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()

	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	dst.CreateItem(ctx, &domain.Item{ID: "a", Code: "99", DestinationURL: "https://other.example", CreatedAt: ts, UpdatedAt: ts})

	dump := `{"items":[{"id":"a","code":"10","destination_url":"https://shop.example/a"}],
	          "events":[{"id":"e1","item_id":"a","type":"entry","timestamp":"2026-03-01T08:00:00Z"}]}`
	items, events, err := doImport(ctx, dst, strings.NewReader(dump), zap.NewNop())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if items != 1 || events != 1 {
		t.Fatalf("imported items/events = %d/%d, want 1/1", items, events)
	}

	got, err := dst.GetItemByCode(ctx, "10")
	if err != nil {
		t.Fatalf("imported item missing: %v", err)
	}
	if got.ID == "a" {
		t.Error("imported item kept the taken id")
	}
	evs, _ := dst.ListEvents(ctx)
	if len(evs) != 1 || evs[0].ItemID != got.ID {
		t.Errorf("events = %+v, want owner %s", evs, got.ID)
	}
}
