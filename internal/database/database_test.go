// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/leboncoin/csp-reporter/internal/config"
	"github.com/leboncoin/csp-reporter/internal/models"
	"github.com/leboncoin/csp-reporter/internal/report"
)

var testDrivers = []string{config.DriverDuckDB, config.DriverSQLite}

// setupTestDB opens an empty store. DuckDB runs in memory; SQLite needs a
// file because every pooled connection to :memory: gets its own database.
func setupTestDB(t *testing.T, driver string) *DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver:       driver,
		Path:         ":memory:",
		MaxMemory:    "256MB",
		QueryTimeout: 5 * time.Second,
	}
	if driver == config.DriverSQLite {
		cfg.Path = filepath.Join(t.TempDir(), "csp_reporter.sqlite")
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create %s test database: %v", driver, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func forEachDriver(t *testing.T, fn func(t *testing.T, db *DB)) {
	t.Helper()
	for _, driver := range testDrivers {
		t.Run(driver, func(t *testing.T) {
			fn(t, setupTestDB(t, driver))
		})
	}
}

var (
	t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	t1 = t0.Add(90 * time.Minute)
)

func newReport(blocked, directive, browser string, at time.Time) *report.NormalizedReport {
	return &report.NormalizedReport{
		BlockedURI:         blocked,
		ViolatedDirective:  directive,
		EffectiveDirective: directive,
		DocumentURI:        "https://www.example.com/checkout",
		LineNumber:         "10",
		ColumnNumber:       "4",
		ScriptSample:       "first sample",
		Date:               at,
		UABrowser:          browser,
		UAPlatform:         "linux",
	}
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		blocked string
		want    string
	}{
		{"https://cdn.example.net/a.js?v=1&x=2", "https://cdn.example.net/a.js"},
		{"https://cdn.example.net/a.js", "https://cdn.example.net/a.js"},
		{"https://cdn.example.net/a.js?", "https://cdn.example.net/a.js"},
		{"?only", ""},
		{"inline", "inline"},
	}

	for _, tt := range tests {
		key := KeyFor(tt.blocked, "script-src")
		if key.BlockedURI != tt.want || key.ViolatedDirective != "script-src" {
			t.Errorf("KeyFor(%q) = %+v, want blocked-uri %q", tt.blocked, key, tt.want)
		}
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(&config.DatabaseConfig{Driver: "postgres", Path: "x"})
	if err == nil {
		t.Fatal("New() should reject unknown drivers")
	}
}

func TestNew_SQLiteRejectsMemoryPath(t *testing.T) {
	for _, path := range []string{":memory:", ""} {
		if _, err := New(&config.DatabaseConfig{Driver: config.DriverSQLite, Path: path}); err == nil {
			t.Errorf("New() with sqlite path %q should fail", path)
		}
	}
}

func TestNew_DefaultPoolAllowsConcurrentReader(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *DB) {
		if got := db.conn.Stats().MaxOpenConnections; got < minOpenConns {
			t.Errorf("MaxOpenConnections = %d, want at least %d", got, minOpenConns)
		}

		ctx := context.Background()
		session, err := db.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		defer session.Release()

		if _, err := db.Count(ctx); err != nil {
			t.Errorf("Count() while a session is held error = %v", err)
		}
	})
}

func TestRecord_FirstOccurrenceThenRepeat(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *DB) {
		ctx := context.Background()

		created, err := db.Record(ctx, newReport("https://cdn.example.net/a.js?v=1", "script-src", "chrome", t0))
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if !created {
			t.Error("first occurrence should create the record")
		}

		second := newReport("https://cdn.example.net/a.js?v=2", "script-src", "firefox", t1)
		second.ScriptSample = "second sample"
		second.DocumentURI = "https://www.example.com/other"
		created, err = db.Record(ctx, second)
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if created {
			t.Error("repeat occurrence should not create a record")
		}

		rec, err := db.Get(ctx, KeyFor("https://cdn.example.net/a.js", "script-src"))
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !rec.FirstSeen.Equal(t0) {
			t.Errorf("FirstSeen = %v, want %v", rec.FirstSeen, t0)
		}
		if !rec.LastSeen.Equal(t1) {
			t.Errorf("LastSeen = %v, want %v", rec.LastSeen, t1)
		}
		if rec.Counters.Chrome != 1 || rec.Counters.Firefox != 1 || rec.Counters.Total() != 2 {
			t.Errorf("Counters = %+v, want chrome=1 firefox=1", rec.Counters)
		}
		if rec.ScriptSample != "first sample" || rec.DocumentURI != "https://www.example.com/checkout" {
			t.Errorf("first-occurrence details were overwritten: %+v", rec)
		}
		if rec.Status != models.ViolationStatusNew {
			t.Errorf("Status = %q, want new", rec.Status)
		}

		n, err := db.Count(ctx)
		if err != nil || n != 1 {
			t.Errorf("Count() = %d, %v, want 1", n, err)
		}
	})
}

func TestRecord_DistinctDirectivesAreDistinctRecords(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *DB) {
		ctx := context.Background()
		for _, directive := range []string{"script-src", "script-src-elem", "img-src"} {
			if _, err := db.Record(ctx, newReport("https://cdn.example.net/a.js", directive, "safari", t0)); err != nil {
				t.Fatalf("Record(%s) error = %v", directive, err)
			}
		}
		n, err := db.Count(ctx)
		if err != nil || n != 3 {
			t.Errorf("Count() = %d, %v, want 3", n, err)
		}
	})
}

func TestRecord_UnknownBrowserCountsAsOther(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *DB) {
		ctx := context.Background()
		for _, browser := range []string{"opera", "", "msedge"} {
			if _, err := db.Record(ctx, newReport("https://x.test/s.js", "script-src", browser, t0)); err != nil {
				t.Fatalf("Record() error = %v", err)
			}
		}
		rec, err := db.Get(ctx, KeyFor("https://x.test/s.js", "script-src"))
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if rec.Counters.Other != 2 || rec.Counters.Edge != 1 {
			t.Errorf("Counters = %+v, want other=2 edge=1", rec.Counters)
		}
	})
}

func TestSession_Operations(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *DB) {
		ctx := context.Background()
		session, err := db.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		defer session.Release()

		key := KeyFor("https://a.test/x.js", "script-src")

		exists, err := session.Exists(ctx, key)
		if err != nil || exists {
			t.Fatalf("Exists() = %v, %v, want false", exists, err)
		}

		// Counters never create partial records.
		ok, err := session.IncrementBrowserCounter(ctx, key, "chrome")
		if err != nil || ok {
			t.Errorf("IncrementBrowserCounter() on missing key = %v, %v, want false", ok, err)
		}
		if err := session.Touch(ctx, key, t1); err != nil {
			t.Errorf("Touch() on missing key error = %v", err)
		}
		if exists, _ := session.Exists(ctx, key); exists {
			t.Fatal("increment/touch must not create a record")
		}

		inserted, err := session.Insert(ctx, key, InsertFields{DocumentURI: "https://a.test/", ScriptSample: "one"}, t0)
		if err != nil || !inserted {
			t.Fatalf("Insert() = %v, %v, want true", inserted, err)
		}
		inserted, err = session.Insert(ctx, key, InsertFields{DocumentURI: "https://b.test/", ScriptSample: "two"}, t1)
		if err != nil || inserted {
			t.Fatalf("second Insert() = %v, %v, want false", inserted, err)
		}

		ok, err = session.IncrementBrowserCounter(ctx, key, "safari")
		if err != nil || !ok {
			t.Errorf("IncrementBrowserCounter() = %v, %v, want true", ok, err)
		}

		// LastSeen never moves backwards.
		if err := session.Touch(ctx, key, t1); err != nil {
			t.Fatalf("Touch() error = %v", err)
		}
		if err := session.Touch(ctx, key, t0); err != nil {
			t.Fatalf("Touch() error = %v", err)
		}
		session.Release()

		rec, err := db.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if rec.DocumentURI != "https://a.test/" || rec.ScriptSample != "one" {
			t.Errorf("Insert overwrote an existing record: %+v", rec)
		}
		if !rec.FirstSeen.Equal(t0) || !rec.LastSeen.Equal(t1) {
			t.Errorf("FirstSeen/LastSeen = %v/%v, want %v/%v", rec.FirstSeen, rec.LastSeen, t0, t1)
		}
		if rec.Counters.Safari != 1 || rec.Counters.Total() != 1 {
			t.Errorf("Counters = %+v, want safari=1", rec.Counters)
		}
	})
}

func TestSession_ReleaseTwice(t *testing.T) {
	db := setupTestDB(t, config.DriverSQLite)
	session, err := db.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	session.Release()
	session.Release()
}

func TestGet_NotFound(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *DB) {
		_, err := db.Get(context.Background(), KeyFor("https://none.test/", "img-src"))
		if err != ErrNotFound {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})
}

func TestCheckpoint_KeepsData(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *DB) {
		ctx := context.Background()
		if _, err := db.Record(ctx, newReport("https://cdn.test/a.js", "script-src", "chrome", t0)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if err := db.Checkpoint(ctx); err != nil {
			t.Fatalf("Checkpoint() error = %v", err)
		}
		count, err := db.Count(ctx)
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if count != 1 {
			t.Errorf("Count() after checkpoint = %d, want 1", count)
		}
	})
}

func TestList_OrderAndPaging(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *DB) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			uri := fmt.Sprintf("https://cdn%d.test/lib.js", i)
			if _, err := db.Record(ctx, newReport(uri, "script-src", "chrome", t0.Add(time.Duration(i)*time.Minute))); err != nil {
				t.Fatalf("Record() error = %v", err)
			}
		}

		page, err := db.List(ctx, 2, 0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(page) != 2 || page[0].BlockedURI != "https://cdn4.test/lib.js" || page[1].BlockedURI != "https://cdn3.test/lib.js" {
			t.Errorf("first page = %+v, want cdn4, cdn3", page)
		}

		rest, err := db.List(ctx, 10, 2)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(rest) != 3 || rest[2].BlockedURI != "https://cdn0.test/lib.js" {
			t.Errorf("second page = %+v, want 3 records ending with cdn0", rest)
		}
	})
}

func TestRecord_ConcurrentSameKey(t *testing.T) {
	db := setupTestDB(t, config.DriverSQLite)
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := db.Record(ctx, newReport("https://race.test/a.js?n="+fmt.Sprint(i), "script-src", "chrome", t0.Add(time.Duration(i)*time.Second)))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				created++
			}
		}(i)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("Record() errors: %v", errs)
	}
	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}

	rec, err := db.Get(ctx, KeyFor("https://race.test/a.js", "script-src"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Counters.Chrome != workers {
		t.Errorf("Chrome counter = %d, want %d", rec.Counters.Chrome, workers)
	}
	if !rec.LastSeen.Equal(t0.Add((workers - 1) * time.Second)) {
		t.Errorf("LastSeen = %v, want latest occurrence", rec.LastSeen)
	}
}

func TestNew_MigratesLegacySQLiteTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csp_reporter.sqlite")

	legacy, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	_, err = legacy.Exec(`CREATE TABLE csp_reporter (
		BlockedURI TEXT NOT NULL, ViolatedDirective TEXT NOT NULL, DocumentURI TEXT NOT NULL,
		FirstSeen TEXT NOT NULL, LastSeen TEXT NOT NULL, ColumnNumber TEXT, LineNumber TEXT,
		Referrer TEXT, ScriptSample TEXT, Status TEXT NOT NULL,
		PRIMARY KEY (BlockedURI, ViolatedDirective))`)
	if err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	_, err = legacy.Exec(`INSERT INTO csp_reporter VALUES (?, ?, ?, ?, ?, NULL, NULL, NULL, NULL, 'new')`,
		"https://old.test/x.js", "script-src", "https://www.example.com/", formatTimestamp(t0), formatTimestamp(t0))
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	if err := legacy.Close(); err != nil {
		t.Fatalf("close legacy db: %v", err)
	}

	db, err := New(&config.DatabaseConfig{Driver: config.DriverSQLite, Path: path, QueryTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New() on legacy file error = %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.Record(ctx, newReport("https://old.test/x.js", "script-src", "firefox", t1)); err != nil {
		t.Fatalf("Record() on migrated table error = %v", err)
	}

	rec, err := db.Get(ctx, KeyFor("https://old.test/x.js", "script-src"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Counters.Firefox != 1 || rec.Counters.Chrome != 0 {
		t.Errorf("Counters = %+v, want firefox=1", rec.Counters)
	}
	if !rec.FirstSeen.Equal(t0) || !rec.LastSeen.Equal(t1) {
		t.Errorf("FirstSeen/LastSeen = %v/%v", rec.FirstSeen, rec.LastSeen)
	}
}
