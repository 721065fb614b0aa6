package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		source  Source
		wantErr error
	}{
		{
			name:   "valid url source",
			source: Source{Kind: KindURL, Title: "CDC Flu Basics", Category: "infectious_disease", URL: "https://cdc.example/flu"},
		},
		{
			name:   "valid text source",
			source: Source{Kind: KindText, Title: "First Aid", Category: "emergency", Content: "Apply pressure to stop bleeding."},
		},
		{
			name:   "valid file source",
			source: Source{Kind: KindFile, Title: "Local Notes", Category: "general", Path: "/data/notes.txt"},
		},
		{
			name:   "valid api source",
			source: Source{Kind: KindAPI, Title: "OpenFDA Drugs", Category: "medications", URL: "https://api.example/drugs"},
		},
		{
			name:    "url source without url",
			source:  Source{Kind: KindURL, Title: "No URL", Category: "c"},
			wantErr: ErrMissingField,
		},
		{
			name:    "text source without content",
			source:  Source{Kind: KindText, Title: "No Content", Category: "c"},
			wantErr: ErrMissingField,
		},
		{
			name:    "file source without path",
			source:  Source{Kind: KindFile, Title: "No Path", Category: "c"},
			wantErr: ErrMissingField,
		},
		{
			name:    "api source without url",
			source:  Source{Kind: KindAPI, Title: "No URL", Category: "c"},
			wantErr: ErrMissingField,
		},
		{
			name:    "missing title",
			source:  Source{Kind: KindText, Category: "c", Content: "text"},
			wantErr: ErrMissingField,
		},
		{
			name:    "missing category",
			source:  Source{Kind: KindText, Title: "t", Content: "text"},
			wantErr: ErrMissingField,
		},
		{
			name:    "unknown kind",
			source:  Source{Kind: "dataset", Title: "t", Category: "c"},
			wantErr: ErrUnknownKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.source.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

const testSourcesJSON = `{
  "medical_sources": {
    "chronic_conditions": {
      "priority": "high",
      "sources": [
        {
          "type": "url",
          "title": "Diabetes Overview",
          "subcategory": "diabetes",
          "url": "https://medline.example/diabetes"
        }
      ]
    }
  },
  "custom_documents": {
    "first_aid": {
      "sources": [
        {
          "type": "text",
          "title": "Burn Treatment",
          "category": "emergency",
          "content": "Cool the burn under running water for twenty minutes."
        }
      ]
    }
  }
}`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	if err := os.WriteFile(path, []byte(testSourcesJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	sources, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}

	byTitle := make(map[string]Source)
	for _, s := range sources {
		byTitle[s.Title] = s
	}

	diabetes, ok := byTitle["Diabetes Overview"]
	if !ok {
		t.Fatal("missing Diabetes Overview source")
	}
	if diabetes.Category != "chronic_conditions" {
		t.Errorf("category = %q, want group key fallback", diabetes.Category)
	}
	if diabetes.Priority != "high" {
		t.Errorf("priority = %q, want group priority", diabetes.Priority)
	}
	if diabetes.Subcategory != "diabetes" {
		t.Errorf("subcategory = %q", diabetes.Subcategory)
	}

	burn, ok := byTitle["Burn Treatment"]
	if !ok {
		t.Fatal("missing Burn Treatment source")
	}
	if burn.Category != "emergency" {
		t.Errorf("category = %q, want explicit value kept", burn.Category)
	}
	if burn.Priority != "medium" {
		t.Errorf("priority = %q, want default", burn.Priority)
	}
	if burn.Subcategory != "general" {
		t.Errorf("subcategory = %q, want default", burn.Subcategory)
	}
}

func TestLoad_StableOrder(t *testing.T) {
	multi := `{
  "medical_sources": {
    "respiratory": {"sources": [{"type": "text", "title": "Asthma", "content": "Inhaled bronchodilators relieve acute attacks."}]},
    "cardiology": {"sources": [{"type": "text", "title": "Hypertension", "content": "Blood pressure control reduces stroke risk."}]},
    "neurology": {"sources": [{"type": "text", "title": "Migraine", "content": "Triptans abort migraine attacks when taken early."}]}
  },
  "custom_documents": {
    "wound_care": {"sources": [{"type": "text", "title": "Lacerations", "content": "Clean wounds with saline before dressing."}]},
    "burns": {"sources": [{"type": "text", "title": "Burns", "content": "Cool burns under running water for twenty minutes."}]}
  }
}`
	path := filepath.Join(t.TempDir(), "sources.json")
	if err := os.WriteFile(path, []byte(multi), 0o600); err != nil {
		t.Fatal(err)
	}

	// Load order decides which source wins when content collides, so the
	// sequence must not vary between runs. Categories come out sorted within
	// each section, medical sources before custom documents.
	want := []string{"Hypertension", "Migraine", "Asthma", "Burns", "Lacerations"}
	for run := 0; run < 20; run++ {
		sources, err := Load(path)
		if err != nil {
			t.Fatalf("Load() = %v", err)
		}
		if len(sources) != len(want) {
			t.Fatalf("len(sources) = %d, want %d", len(sources), len(want))
		}
		for i, s := range sources {
			if s.Title != want[i] {
				t.Fatalf("run %d: sources[%d].Title = %q, want %q", run, i, s.Title, want[i])
			}
		}
	}
}

func TestLoad_InvalidSourceFails(t *testing.T) {
	bad := `{"medical_sources": {"c": {"sources": [{"type": "url", "title": "No URL"}]}}}`
	path := filepath.Join(t.TempDir(), "sources.json")
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !errors.Is(err, ErrMissingField) {
		t.Errorf("Load() = %v, want ErrMissingField", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Load() = nil, want error for missing file")
	}
}
