package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) SQLiteRepo {
	t.Helper()

	db, err := OpenDB(filepath.Join(t.TempDir(), "shares.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewSQLiteRepo(db)
}

func TestBlake3Hash(t *testing.T) {
	data := []byte("merged recording")

	h, err := Blake3Hash(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(h) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(h))
	}

	if got := Blake3HashBytes(data); got != h {
		t.Errorf("Expected Blake3HashBytes to match Blake3Hash, got %s vs %s", got, h)
	}

	if other := Blake3HashBytes([]byte("another recording")); other == h {
		t.Error("Expected different hashes for different data")
	}
}

func TestFileStoreSaveAndRead(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	data := []byte("RIFF fake wav")
	hash := Blake3HashBytes(data)

	rel, err := fs.Save("course-1", "lesson-7", hash, data)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	want := filepath.Join("course-1", "lesson-7", hash+".wav")
	if rel != want {
		t.Errorf("Expected path %s, got %s", want, rel)
	}

	got, err := fs.Read(rel)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if !bytes.Equal(got, data) {
		t.Errorf("Expected %q, got %q", data, got)
	}

	// saving the same hash again keeps the first file
	if _, err := fs.Save("course-1", "lesson-7", hash, []byte("different")); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, _ = fs.Read(rel)
	if !bytes.Equal(got, data) {
		t.Errorf("Expected original content after duplicate save, got %q", got)
	}

	entries, _ := os.ReadDir(filepath.Join(fs.BaseDir(), "course-1", "lesson-7"))
	if len(entries) != 1 {
		t.Errorf("Expected 1 file in lesson dir, got %d", len(entries))
	}
}

func TestFileStoreRejectsInvalidPaths(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	tests := []struct {
		name   string
		course string
		lesson string
		hash   string
	}{
		{"empty course", "", "lesson", "abc"},
		{"dot dot lesson", "course", "..", "abc"},
		{"slash in hash", "course", "lesson", "../abc"},
		{"backslash", `course\x`, "lesson", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fs.Save(tt.course, tt.lesson, tt.hash, []byte("x"))
			if !errors.Is(err, ErrInvalidPath) {
				t.Errorf("Expected ErrInvalidPath, got %v", err)
			}
		})
	}

	if _, err := fs.Read("../../etc/passwd"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath for escaping read, got %v", err)
	}
}

func TestCreateShare(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	share := Share{
		Hash:       "abc123",
		CourseID:   "course-1",
		LessonID:   "lesson-7",
		UserName:   "learner",
		Path:       "course-1/lesson-7/abc123.wav",
		DurationMs: 8000,
		SampleRate: 16666,
		Score:      decimal.NullDecimal{Decimal: decimal.RequireFromString("87.5"), Valid: true},
	}

	created, isNew, err := repo.CreateShare(ctx, share)
	if err != nil {
		t.Fatalf("CreateShare failed: %v", err)
	}

	if !isNew {
		t.Error("Expected first insert to create a share")
	}

	if created.ID == 0 {
		t.Error("Expected share ID to be assigned")
	}

	// duplicate hash returns the existing row
	share.UserName = "someone else"
	dup, isNew, err := repo.CreateShare(ctx, share)
	if err != nil {
		t.Fatalf("Duplicate CreateShare failed: %v", err)
	}

	if isNew {
		t.Error("Expected duplicate insert not to create a share")
	}

	if dup.ID != created.ID {
		t.Errorf("Expected ID %d, got %d", created.ID, dup.ID)
	}

	if dup.UserName != "learner" {
		t.Errorf("Expected original user name, got %s", dup.UserName)
	}

	if !dup.Score.Valid || !dup.Score.Decimal.Equal(decimal.RequireFromString("87.5")) {
		t.Errorf("Expected score 87.5, got %+v", dup.Score)
	}

	if dup.SampleRate != 16666 || dup.DurationMs != 8000 {
		t.Errorf("Expected 16666 Hz / 8000 ms, got %d Hz / %d ms", dup.SampleRate, dup.DurationMs)
	}
}

func TestGetShareByHashNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetShareByHash(context.Background(), "missing")
	if !errors.Is(err, ErrShareNotFound) {
		t.Errorf("Expected ErrShareNotFound, got %v", err)
	}
}

func TestListShares(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000)
	shares := []Share{
		{Hash: "h1", CourseID: "c", LessonID: "l1", UserName: "a", Path: "p1", CreatedAt: base},
		{Hash: "h2", CourseID: "c", LessonID: "l1", UserName: "b", Path: "p2", CreatedAt: base.Add(time.Minute)},
		{Hash: "h3", CourseID: "c", LessonID: "l2", UserName: "c", Path: "p3", CreatedAt: base},
	}

	for _, s := range shares {
		if _, _, err := repo.CreateShare(ctx, s); err != nil {
			t.Fatalf("CreateShare %s failed: %v", s.Hash, err)
		}
	}

	list, err := repo.ListShares(ctx, "l1")
	if err != nil {
		t.Fatalf("ListShares failed: %v", err)
	}

	if len(list) != 2 {
		t.Fatalf("Expected 2 shares, got %d", len(list))
	}

	if list[0].Hash != "h2" || list[1].Hash != "h1" {
		t.Errorf("Expected newest first [h2 h1], got [%s %s]", list[0].Hash, list[1].Hash)
	}

	if list[1].Score.Valid {
		t.Error("Expected null score for share without assessment")
	}

	if !list[1].CreatedAt.Equal(base) {
		t.Errorf("Expected created_at %v, got %v", base, list[1].CreatedAt)
	}

	empty, err := repo.ListShares(ctx, "none")
	if err != nil {
		t.Fatalf("ListShares failed: %v", err)
	}

	if len(empty) != 0 {
		t.Errorf("Expected no shares, got %d", len(empty))
	}
}
