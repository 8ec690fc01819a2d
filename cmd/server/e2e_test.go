package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/app"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/config"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
)

func TestIntegration(t *testing.T) {
	// 1. Setup app on a shared in-memory database
	cfg := &config.Config{
		DatabaseURL:            "file:memdb1?mode=memory&cache=shared",
		JWTSecret:              "e2e-secret",
		ReportTimezone:         "UTC",
		RateLimitPerMinute:     1000,
		TelemetryQueueSize:     64,
		TelemetryWorkers:       1,
		TelemetryBatchSize:     10,
		TelemetryFlushInterval: 10 * time.Millisecond,
	}
	application, err := app.New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to init app: %v", err)
	}
	defer application.Close(context.Background())

	server := httptest.NewServer(application.Handler)
	defer server.Close()

	token, err := handler.IssueToken(cfg.JWTSecret, "ops@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	client := server.Client()

	do := func(method, path string, payload interface{}, auth bool) *http.Response {
		t.Helper()
		var body bytes.Buffer
		if payload != nil {
			json.NewEncoder(&body).Encode(payload)
		}
		req, _ := http.NewRequest(method, server.URL+path, &body)
		req.Header.Set("Content-Type", "application/json")
		if auth {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		return resp
	}

	// TEST 1: Suggested code on an empty store
	resp := do("GET", "/api/v1/items/next-code", nil, true)
	var next map[string]string
	json.NewDecoder(resp.Body).Decode(&next)
	resp.Body.Close()
	if next["code"] != "1" {
		t.Errorf("next code = %q, want 1", next["code"])
	}

	// TEST 2: Create items
	var ids = map[string]string{}
	for code, dest := range map[string]string{"10": "https://shop.example/a", "20": "https://shop.example/b"} {
		resp = do("POST", "/api/v1/items", map[string]string{"code": code, "destination_url": dest}, true)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: expected 201, got %d", code, resp.StatusCode)
		}
		var created domain.Item
		json.NewDecoder(resp.Body).Decode(&created)
		resp.Body.Close()
		ids[code] = created.ID
	}

	// TEST 3: Duplicate code is rejected
	resp = do("POST", "/api/v1/items", map[string]string{"code": "10", "destination_url": "https://shop.example/c"}, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", resp.StatusCode)
	}

	// TEST 4: Lookups and clicks
	for i := 0; i < 3; i++ {
		resp = do("GET", "/api/v1/lookup/10", nil, false)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("lookup 10: expected 200, got %d", resp.StatusCode)
		}
	}
	resp = do("GET", "/api/v1/lookup/20", nil, false)
	resp.Body.Close()
	resp = do("GET", "/api/v1/lookup/99", nil, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown code: expected 404, got %d", resp.StatusCode)
	}

	resp = do("POST", "/api/v1/track", map[string]string{"destination_url": "https://shop.example/b"}, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("track: expected 202, got %d", resp.StatusCode)
	}
	resp = do("POST", "/api/v1/track", map[string]string{"destination_url": "https://nowhere.example"}, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("track unknown: expected 202, got %d", resp.StatusCode)
	}

	// TEST 5: Report eventually reflects 4 entries and 1 click
	var rep domain.Report
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp = do("GET", "/api/v1/report?days=7&top=5", nil, true)
		rep = domain.Report{}
		json.NewDecoder(resp.Body).Decode(&rep)
		resp.Body.Close()
		if rep.KPIs.TotalSearches == 4 && rep.KPIs.TotalClicks == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("report never settled: %+v", rep.KPIs)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if rep.KPIs.MostPopularCode != "20" {
		t.Errorf("most popular = %q, want 20", rep.KPIs.MostPopularCode)
	}
	if rep.KPIs.CTR != "25.0" {
		t.Errorf("ctr = %q, want 25.0", rep.KPIs.CTR)
	}
	if len(rep.DailyActivity) != 7 {
		t.Errorf("daily buckets = %d, want 7", len(rep.DailyActivity))
	}

	// TEST 6: Delete cascades to events
	resp = do("DELETE", "/api/v1/items/"+ids["20"], nil, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	events, err := application.Repo.ListEvents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range events {
		if ev.ItemID == ids["20"] {
			t.Errorf("event %s survived delete of its item", ev.ID)
		}
	}
	resp = do("GET", "/api/v1/lookup/20", nil, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("lookup deleted: expected 404, got %d", resp.StatusCode)
	}

	// TEST 7: Operator routes need a token
	resp = do("GET", "/api/v1/items", nil, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("items without token: expected 401, got %d", resp.StatusCode)
	}
}
