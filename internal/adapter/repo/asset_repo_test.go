package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"spriteforge/internal/domain"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.vals[i].(string)
		case *int:
			*p = r.vals[i].(int)
		case *int64:
			*p = r.vals[i].(int64)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		}
	}
	return nil
}

type fakeDB struct {
	execQueries []string
	execArgs    [][]any
	tag         pgconn.CommandTag
	row         fakeRow
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.execQueries = append(f.execQueries, query)
	f.execArgs = append(f.execArgs, args)
	return f.tag, nil
}

func (f *fakeDB) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	f.execQueries = append(f.execQueries, query)
	f.execArgs = append(f.execArgs, args)
	return f.row
}

func (f *fakeDB) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented in fake")
}

func TestCreatePassesRecordFields(t *testing.T) {
	db := &fakeDB{}
	r := NewAssetRepo(db)

	rec := &domain.AssetRecord{
		ID:      "id-1",
		Type:    domain.AssetTypeCharacter,
		Name:    "Knight",
		Prompt:  "a knight",
		Status:  domain.AssetStatusPending,
		BatchID: "batch-1",
		Seed:    42,
	}
	if err := r.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(db.execQueries) != 1 || !strings.Contains(db.execQueries[0], "insert into generated_assets") {
		t.Fatalf("queries = %v", db.execQueries)
	}
	args := db.execArgs[0]
	if args[0] != "id-1" || args[1] != "character" || args[5] != "PENDING" || args[6] != "batch-1" {
		t.Fatalf("args = %v", args)
	}
}

func TestMarkFailedUsesGuardedStatement(t *testing.T) {
	db := &fakeDB{}
	r := NewAssetRepo(db)

	if err := r.MarkFailed(context.Background(), "id-1", "timeout: prompt job-9"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	query := db.execQueries[0]
	if !strings.Contains(query, "status in ('PENDING', 'PROCESSING')") {
		t.Fatalf("MarkFailed must not rewrite terminal rows: %s", query)
	}
	if db.execArgs[0][1] != "timeout: prompt job-9" {
		t.Fatalf("args = %v", db.execArgs[0])
	}
}

func TestMarkCompletedTakesFirstJobID(t *testing.T) {
	db := &fakeDB{}
	r := NewAssetRepo(db)

	meta := &domain.GeneratedAssetMetadata{
		FilePath:    "/assets/character.png",
		ComfyJobIDs: []string{"job-1", "job-2", "job-3"},
		Workflow:    "character-frame",
	}
	if err := r.MarkCompleted(context.Background(), "id-1", meta); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	args := db.execArgs[0]
	if args[7] != "job-1" {
		t.Fatalf("comfy_job_id arg = %v, want job-1", args[7])
	}
}

func TestGetByIDNotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	r := NewAssetRepo(db)

	_, err := r.GetByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestGetByIDScansRecord(t *testing.T) {
	now := time.Now()
	db := &fakeDB{row: fakeRow{vals: []any{
		"id-1", "tileset", "Grass", "grass tiles", "tileset", "COMPLETED",
		"", "/assets/t.png", "/assets/thumbs/t.png", int64(2048),
		512, 448, int64(7), "job-1", "", now, now,
	}}}
	r := NewAssetRepo(db)

	rec, err := r.GetByID(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Type != domain.AssetTypeTileset || rec.Status != domain.AssetStatusCompleted {
		t.Fatalf("record = %+v", rec)
	}
	if rec.FileSize != 2048 || rec.Width != 512 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestReclaimStaleBuildsInterval(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 3")}
	r := NewAssetRepo(db)

	n, err := r.ReclaimStale(context.Background(), 15*time.Minute, "worker reclaimed")
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if n != 3 {
		t.Fatalf("reclaimed = %d, want 3", n)
	}
	if db.execArgs[0][0] != "900 seconds" {
		t.Fatalf("interval arg = %v, want 900 seconds", db.execArgs[0][0])
	}
}
