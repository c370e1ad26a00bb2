package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"patent-hand/models"
	"patent-hand/providers/patentsview"
	"patent-hand/storage"
)

func newTestResolver(t *testing.T, store *storage.Store, fake *fakeSearch) *CitationResolver {
	t.Helper()
	walker := patentsview.NewWalker(fake.api, fake, 100, 1000, zap.NewNop())
	return &CitationResolver{
		API:        fake.api,
		Walker:     walker,
		Reconciler: NewReconciler(store, zap.NewNop()),
		Store:      store,
		Budget:     2000,
		PerCallCap: 25,
		Logger:     zap.NewNop(),
	}
}

func seedPatents(t *testing.T, store *storage.Store, org string, numbers ...string) {
	t.Helper()
	var patents []patentsview.Patent
	for _, n := range numbers {
		patents = append(patents, patentsview.Patent{Number: n, Assignees: []patentsview.Assignee{{Organization: org}}})
	}
	_, err := NewReconciler(store, zap.NewNop()).Reconcile(context.Background(), patents)
	require.NoError(t, err)
}

func TestDiscoverEdgesDeduplicatesUnorderedPairs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedCompanies(t, store, storage.SeedEntry{Name: "Acme Corp"})
	seedPatents(t, store, "Acme Corp", "7000001", "7000002")

	fake := newFakeSearch(searchAPI(t))
	fake.citations["7000001"] = []string{"5000001", "7000002"}
	fake.citations["7000002"] = []string{"7000001", "5000002"}
	resolver := newTestResolver(t, store, fake)

	stats, err := resolver.DiscoverEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, EdgeStats{Patents: 2, Chunks: 1, Fetched: 4, Inserted: 3, Duplicates: 1}, stats)

	edges, err := store.CitationsOf(ctx, "7000002")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "7000001", edges[0].CitingPatentNumber)
	assert.Equal(t, "7000002", edges[0].CitedPatentNumber)

	again, err := resolver.DiscoverEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inserted)
	assert.Equal(t, 4, again.Duplicates)

	var count int64
	require.NoError(t, store.DB.Model(&models.CitedPatent{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestDiscoverEdgesChunksLargeInput(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedCompanies(t, store, storage.SeedEntry{Name: "Acme Corp"})
	numbers := make([]string, 60)
	for i := range numbers {
		numbers[i] = string(rune('A'+i/26)) + string(rune('a'+i%26)) + "000"
	}
	seedPatents(t, store, "Acme Corp", numbers...)

	fake := newFakeSearch(searchAPI(t))
	resolver := newTestResolver(t, store, fake)

	stats, err := resolver.DiscoverEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, stats.Patents)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 3, fake.calls)
	assert.Zero(t, stats.Inserted)
}

func TestDiscoverEdgesWithoutPatents(t *testing.T) {
	store := newTestStore(t)
	fake := newFakeSearch(searchAPI(t))

	stats, err := newTestResolver(t, store, fake).DiscoverEdges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EdgeStats{}, stats)
	assert.Zero(t, fake.calls)
}

func TestBackfillCited(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedCompanies(t, store, storage.SeedEntry{Name: "Acme Corp"})
	seedPatents(t, store, "Acme Corp", "7000001")

	fake := newFakeSearch(searchAPI(t))
	fake.citations["7000001"] = []string{"5000001", "5000002"}
	fake.addPatent("5000001", "Acme Corp", "ext-acme")
	fake.addPatent("5000002", "Nobody Ltd", "ext-nobody")
	resolver := newTestResolver(t, store, fake)

	_, err := resolver.DiscoverEdges(ctx)
	require.NoError(t, err)

	missing, err := store.MissingCitedPatents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"5000001", "5000002"}, missing)

	stats, err := resolver.BackfillCited(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Missing)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Unresolved)

	// Nicht zuordenbare zitierte Patente bleiben offen.
	missing, err = store.MissingCitedPatents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"5000002"}, missing)

	again, err := resolver.BackfillCited(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Missing)
	assert.Zero(t, again.Inserted)
}

func TestUnordered(t *testing.T) {
	assert.Equal(t, unordered("a", "b"), unordered("b", "a"))
	assert.NotEqual(t, unordered("a", "b"), unordered("a", "c"))
}
