package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wellnessgrid/medrag/internal/ingest"
	"github.com/wellnessgrid/medrag/internal/source"
)

func TestSourceName(t *testing.T) {
	tests := []struct {
		name string
		src  source.Source
		want string
	}{
		{
			name: "url source uses hostname",
			src:  source.Source{Kind: source.KindURL, URL: "https://medlineplus.gov/diabetes.html"},
			want: "medlineplus.gov",
		},
		{
			name: "api source uses hostname",
			src:  source.Source{Kind: source.KindAPI, URL: "https://health.gov/myhealthfinder/api/v3/topicsearch.json"},
			want: "health.gov",
		},
		{
			name: "unparseable url falls back",
			src:  source.Source{Kind: source.KindURL, URL: "://bad"},
			want: "web",
		},
		{
			name: "file source",
			src:  source.Source{Kind: source.KindFile, Path: "notes.txt"},
			want: "local",
		},
		{
			name: "text source",
			src:  source.Source{Kind: source.KindText, Content: "..."},
			want: "inline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sourceName(tt.src); got != tt.want {
				t.Errorf("sourceName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadEndpoints(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "endpoints.json")
		data := `[
			{
				"name": "medlineplus",
				"base_url": "https://medlineplus.gov",
				"paths": ["/healthtopics.html"],
				"category": "general_health"
			}
		]`
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}

		endpoints, err := loadEndpoints(path)
		if err != nil {
			t.Fatalf("loadEndpoints() error = %v", err)
		}
		if len(endpoints) != 1 {
			t.Fatalf("got %d endpoints, want 1", len(endpoints))
		}
		if endpoints[0].Name != "medlineplus" || len(endpoints[0].Paths) != 1 {
			t.Errorf("endpoint = %+v", endpoints[0])
		}
	})

	t.Run("missing base_url rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		if err := os.WriteFile(path, []byte(`[{"name": "x"}]`), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := loadEndpoints(path); err == nil {
			t.Error("expected error for endpoint without base_url")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		if err := os.WriteFile(path, []byte(`{not json`), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := loadEndpoints(path); err == nil {
			t.Error("expected error for malformed file")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := loadEndpoints(filepath.Join(dir, "nope.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestPrintSummary(t *testing.T) {
	now := time.Now()
	stats := ingest.Stats{
		RunID:            "run-1",
		Started:          now,
		Finished:         now.Add(3 * time.Second),
		Total:            4,
		Ingested:         2,
		SkippedUnchanged: 1,
		Failed:           1,
		ChunksCreated:    17,
		ChunksDropped:    2,
	}
	results := []ingest.Result{
		{SourceID: "a", Outcome: ingest.OutcomeIngested},
		{SourceID: "b", Outcome: ingest.OutcomeFailed, Err: os.ErrDeadlineExceeded},
	}

	var buf bytes.Buffer
	printSummary(&buf, stats, results)
	out := buf.String()

	for _, want := range []string{"run-1", "ingested:", "chunks created:", "chunks dropped:", "FAILED b"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(buf.String(), "medrag") {
		t.Errorf("version output = %q", buf.String())
	}
}
