package mysql

import (
	"context"
	"database/sql/driver"
	"strings"
	"testing"
)

var transcriptColumns = []string{"id", "session_id", "message", "chain_id", "success", "category", "response", "error_message", "tool_calls", "iterations", "history_length", "created_at"}

func TestMemoryTranscriptRepositoryPersists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewMemoryTranscriptRepository(dir)
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}

	ctx := context.Background()
	for i, session := range []string{"s1", "s2", "s1"} {
		record := &TranscriptRecord{SessionID: session, Message: "q", Success: true, Iterations: i + 1, CreatedAt: int64(100 + i)}
		if err := repo.Save(ctx, record); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if record.ID != int64(i+1) {
			t.Fatalf("expected id %d, got %d", i+1, record.ID)
		}
	}

	latest, err := repo.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(latest) != 2 || latest[0].ID != 3 || latest[1].ID != 2 {
		t.Fatalf("unexpected latest records: %+v", latest)
	}

	bySession, err := repo.ListBySession(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("list by session failed: %v", err)
	}
	if len(bySession) != 2 || bySession[0].Iterations != 3 {
		t.Fatalf("unexpected session records: %+v", bySession)
	}

	reopened, err := NewMemoryTranscriptRepository(dir)
	if err != nil {
		t.Fatalf("failed to reopen repo: %v", err)
	}
	restored, _ := reopened.ListLatest(ctx, 0)
	if len(restored) != 3 || restored[0].ID != 3 {
		t.Fatalf("records not restored from disk: %+v", restored)
	}
	next := &TranscriptRecord{SessionID: "s3"}
	if err := reopened.Save(ctx, next); err != nil {
		t.Fatalf("save after reopen failed: %v", err)
	}
	if next.ID != 4 {
		t.Fatalf("expected id sequence to continue, got %d", next.ID)
	}
}

func TestSQLTranscriptRepositorySave(t *testing.T) {
	t.Parallel()

	op := execOp(insertTranscriptSQL, fakeResult{lastInsertID: 42, rowsAffected: 1})
	op.args = func(t *testing.T, args []driver.NamedValue) {
		if len(args) != 11 {
			t.Errorf("expected 11 args, got %d", len(args))
			return
		}
		if args[0].Value != "session-1" || args[3].Value != true {
			t.Errorf("unexpected args: %+v", args)
		}
	}
	db, drv := newScriptedDB(t, op)
	defer drv.assertConsumed(t)

	repo := &SQLTranscriptRepository{db: db}
	record := &TranscriptRecord{SessionID: "session-1", Message: "gas?", Success: true, Iterations: 2, CreatedAt: 1}
	if err := repo.Save(context.Background(), record); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if record.ID != 42 {
		t.Fatalf("expected id 42, got %d", record.ID)
	}
}

func TestSQLTranscriptRepositoryList(t *testing.T) {
	t.Parallel()

	rows := fakeRowsData{
		columns: transcriptColumns,
		values: [][]driver.Value{
			{int64(2), "s1", "q2", "1", int64(1), "gas_analysis", "r2", "", "[]", int64(3), int64(4), int64(20)},
			{int64(1), "s1", "q1", "", int64(0), "", "", "boom", "", int64(0), int64(2), int64(10)},
		},
	}
	db, drv := newScriptedDB(t,
		queryOp(selectTranscriptColumns+` ORDER BY created_at DESC, id DESC LIMIT ?`, rows),
		queryOp(selectTranscriptColumns+` WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, fakeRowsData{columns: transcriptColumns}),
	)
	defer drv.assertConsumed(t)

	repo := &SQLTranscriptRepository{db: db}
	list, err := repo.ListLatest(context.Background(), 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != 2 || !list[0].Success || list[1].Success || list[1].Error != "boom" {
		t.Fatalf("unexpected list: %+v", list)
	}

	empty, err := repo.ListBySession(context.Background(), "missing", 5)
	if err != nil {
		t.Fatalf("list by session failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no records, got %+v", empty)
	}
}

func TestRunMigrationsAppliesPending(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles()
	if err != nil || len(files) == 0 {
		t.Fatalf("expected embedded migrations, got %v (%v)", files, err)
	}

	ops := []fakeOperation{
		execOp(createMigrationsTable, fakeResult{}),
		queryOp(`SELECT version FROM schema_migrations`, fakeRowsData{columns: []string{"version"}}),
		beginOp(),
		execOp(files[0].statements[0], fakeResult{}),
		execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, fakeResult{rowsAffected: 1}),
		commitOp(),
	}
	db, drv := newScriptedDB(t, ops...)
	defer drv.assertConsumed(t)

	if err := runMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	t.Parallel()

	db, drv := newScriptedDB(t,
		execOp(createMigrationsTable, fakeResult{}),
		queryOp(`SELECT version FROM schema_migrations`, fakeRowsData{
			columns: []string{"version"},
			values:  [][]driver.Value{{"0001"}},
		}),
	)
	defer drv.assertConsumed(t)

	if err := runMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestNormalizeDSN(t *testing.T) {
	t.Parallel()

	dsn, err := normalizeDSN("user:pass@tcp(localhost:3306)/chainscope")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if want := "parseTime=true"; !strings.Contains(dsn, want) {
		t.Fatalf("expected %q in %q", want, dsn)
	}
	if want := "charset=utf8mb4"; !strings.Contains(dsn, want) {
		t.Fatalf("expected %q in %q", want, dsn)
	}
	if _, err := normalizeDSN("::not a dsn"); err == nil {
		t.Fatalf("expected error for malformed dsn")
	}
}
