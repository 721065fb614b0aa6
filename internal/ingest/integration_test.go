//go:build integration

package ingest_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellnessgrid/medrag/internal/ingest"
	"github.com/wellnessgrid/medrag/internal/model"
	"github.com/wellnessgrid/medrag/internal/registry"
	"github.com/wellnessgrid/medrag/internal/store"
	"github.com/wellnessgrid/medrag/internal/testutil"
)

const dimension = 768

// TestPipeline_Integration runs the full path: documents through chunking,
// a mock model server speaking the production protocol, transactional
// persistence into pgvector, and the file registry.
//
// Run with: go test -tags=integration ./internal/ingest -v
func TestPipeline_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	_, serverURL := testutil.NewModelServer(t, dimension)
	client := model.NewClient(serverURL, "test-embedder", "test-generator")

	ctx := context.Background()
	require.NoError(t, model.VerifyDimension(ctx, client, dimension))

	st := store.New(db.Pool, testutil.DiscardLogger())

	registryPath := filepath.Join(t.TempDir(), "registry.json")
	reg, err := registry.NewFile(registryPath)
	require.NoError(t, err)

	orch, err := ingest.New(st, client, reg, ingest.Options{
		MaxChunkSize: 400,
		ChunkOverlap: 80,
		Dimension:    dimension,
	}, testutil.DiscardLogger())
	require.NoError(t, err)

	docs := []ingest.Document{
		{
			Title:       "Managing Type 2 Diabetes",
			Content:     "Type 2 diabetes is a chronic condition affecting how the body processes blood sugar. Treatment usually starts with lifestyle changes and metformin. Patients should monitor glucose levels regularly and attend scheduled checkups with their doctor.",
			Source:      "medlineplus.gov",
			Topic:       "diabetes",
			Category:    "chronic_conditions",
			Subcategory: "diabetes",
			SourceType:  "url",
		},
		{
			Title:       "Recognizing Heart Attack Symptoms",
			Content:     "A heart attack happens when blood flow to the heart muscle is blocked. Common symptoms include chest pain, shortness of breath, and pain radiating to the arm or jaw. Call emergency services immediately when these symptoms appear.",
			Source:      "medlineplus.gov",
			Topic:       "cardiology",
			Category:    "emergencies",
			Subcategory: "cardiac",
			SourceType:  "url",
		},
	}

	stats, results, err := orch.Run(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Ingested)
	assert.Zero(t, stats.Failed)
	for _, r := range results {
		assert.Equal(t, ingest.OutcomeIngested, r.Outcome, r.SourceID)
	}

	count, err := st.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	chunks, err := st.CountChunks(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, chunks, 2)

	// The mock embedder is deterministic, so searching with a stored chunk's
	// exact text must rank that chunk first with similarity ~1.
	queryVecs, err := client.EmbedBatch(ctx, []string{docs[1].Content})
	require.NoError(t, err)

	hits, err := st.SearchChunks(ctx, queryVecs[0], 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Recognizing Heart Attack Symptoms", hits[0].Title)
	assert.InDelta(t, 1.0, hits[0].Similarity, 0.01)

	// A second run with identical content is a no-op.
	stats2, _, err := orch.Run(ctx, docs)
	require.NoError(t, err)
	assert.Zero(t, stats2.Ingested)
	assert.Equal(t, 2, stats2.SkippedUnchanged)

	// Changed content re-ingests through the delete-then-insert path.
	docs[0].Content += " Newer guidance adds continuous glucose monitoring for many patients."
	stats3, _, err := orch.Run(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 1, stats3.Ingested)
	assert.Equal(t, 1, stats3.SkippedUnchanged)

	count, err = st.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
