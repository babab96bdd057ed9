package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-listings/config"
	"github.com/aluiziolira/go-scrape-listings/models"
)

func newTestPersister(t *testing.T, formats ...string) (*Persister, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.Formats = formats
	ps := NewPersister(cfg)
	ps.now = func() time.Time { return time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC) }
	return ps, cfg.OutputDir
}

func TestPersistWritesEveryFormat(t *testing.T) {
	ps, dir := newTestPersister(t, config.FormatJSON, config.FormatCSV, config.FormatXLSX)
	run := RunInfo{Site: "coupang", Label: "air force", Source: "search:coupang", Terminal: models.TerminalDone}

	summary, err := ps.Persist(run, []*models.Product{
		testProduct("https://shop.test/p/1", 8000, 10000),
		testProduct("https://shop.test/p/2", 4000, 4000),
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	want := map[string]string{
		"json":    filepath.Join(dir, "coupang_air_force_20250307_093000.json"),
		"csv":     filepath.Join(dir, "coupang_air_force_20250307_093000.csv"),
		"xlsx":    filepath.Join(dir, "coupang_air_force_20250307_093000.xlsx"),
		"summary": filepath.Join(dir, "summary_air_force_20250307_093000.json"),
	}
	for key, path := range want {
		if summary.Files[key] != path {
			t.Fatalf("file %s: expected %s, got %s", key, path, summary.Files[key])
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("artifact %s missing: %v", path, err)
		}
	}
	if summary.TotalCount != 2 || summary.AvgPrice != 6000 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestPersistFailingFormatKeepsOthers(t *testing.T) {
	ps, dir := newTestPersister(t, config.FormatJSON, config.FormatXLSX)
	blocked := filepath.Join(dir, "coupang_k_20250307_093000.xlsx")
	if err := os.MkdirAll(blocked, 0o755); err != nil {
		t.Fatalf("block xlsx path: %v", err)
	}

	summary, err := ps.Persist(RunInfo{Site: "coupang", Label: "k", Source: "search:coupang"}, []*models.Product{
		testProduct("https://shop.test/p/1", 100, 100),
	})
	if err == nil {
		t.Fatalf("expected persistence error")
	}
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PersistenceError, got %T", err)
	}
	if len(perr.Artifacts) != 1 || perr.Artifacts[0].Format != config.FormatXLSX {
		t.Fatalf("unexpected artifact failures %+v", perr.Artifacts)
	}
	if summary == nil {
		t.Fatalf("summary should still be returned")
	}
	if _, ok := summary.Files[config.FormatXLSX]; ok {
		t.Fatalf("failed artifact must not be listed")
	}
	if _, err := os.Stat(summary.Files[config.FormatJSON]); err != nil {
		t.Fatalf("json artifact should exist: %v", err)
	}
}

func TestPrepareSharedBySnapshotAndArtifacts(t *testing.T) {
	ps, dir := newTestPersister(t, config.FormatJSON, config.FormatCSV)
	store := NewStore(filepath.Join(dir, "snapshot.csv"))

	bad := testProduct("https://shop.test/p/bad", 9000, 5000)
	good := testProduct("https://shop.test/p/good", 1000, 1000)
	records := Prepare([]*models.Product{bad, nil, good})
	if len(records) != 2 {
		t.Fatalf("expected 2 prepared records, got %d", len(records))
	}
	if !records[0].Failed() || records[1].Failed() {
		t.Fatalf("unexpected prepared statuses %s/%s", records[0].Status, records[1].Status)
	}
	if again := Prepare(records); again[0] != records[0] || again[1] != records[1] {
		t.Fatalf("preparing twice should return the same records")
	}

	if _, err := store.Update(context.Background(), records); err != nil {
		t.Fatalf("update snapshot: %v", err)
	}
	summary, err := ps.Persist(RunInfo{Site: "coupang", Label: "k", Source: "search:coupang"}, records)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	snapshot, err := store.Load()
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	artifact, err := NewStore(summary.Files[config.FormatCSV]).Load()
	if err != nil {
		t.Fatalf("load csv artifact: %v", err)
	}
	status := map[string]models.Status{}
	for _, p := range artifact {
		status[p.URL] = p.Status
	}
	for _, p := range snapshot {
		if status[p.URL] != p.Status {
			t.Fatalf("status of %s differs: snapshot %s, artifact %s", p.URL, p.Status, status[p.URL])
		}
	}
	if summary.FailedCount != 1 {
		t.Fatalf("expected 1 failed record in summary, got %d", summary.FailedCount)
	}
}

func TestPersistNonFiniteRatingKeepsJSON(t *testing.T) {
	ps, _ := newTestPersister(t, config.FormatJSON, config.FormatCSV)
	odd := testProduct("https://shop.test/p/1", 100, 100)
	odd.Rating = math.Inf(1)

	summary, err := ps.Persist(RunInfo{Site: "coupang", Label: "k", Source: "search:coupang"}, []*models.Product{odd})
	if err != nil {
		t.Fatalf("a single bad field must not fail persistence: %v", err)
	}
	if _, err := os.Stat(summary.Files[config.FormatJSON]); err != nil {
		t.Fatalf("json artifact missing: %v", err)
	}
	if summary.FailedCount != 1 {
		t.Fatalf("record should be kept as failed, got %+v", summary)
	}
}
