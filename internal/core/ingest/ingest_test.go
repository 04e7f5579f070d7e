package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/scigraph/internal/core/extraction"
	"github.com/agenthands/scigraph/internal/core/identity"
	"github.com/agenthands/scigraph/internal/core/model"
	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/driver"
)

func session(t *testing.T, store *driver.MemoryStore) driver.GraphDriver {
	t.Helper()
	s, err := store.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func projectNodes(n int) []model.Node {
	nodes := make([]model.Node, n)
	for i := range nodes {
		name := fmt.Sprintf("P%d", i)
		nodes[i] = model.Node{
			Label:      model.LabelProject,
			GlobalID:   identity.GlobalID(name),
			Attributes: map[string]any{"shortName": name},
		}
	}
	return nodes
}

func TestUpsert_BatchFailureContinues(t *testing.T) {
	store := driver.NewMemoryStore()
	failing := identity.GlobalID("P2")
	store.FailNodes = func(nodes []model.Node) error {
		for _, n := range nodes {
			if n.GlobalID == failing {
				return errors.New("lock timeout")
			}
		}
		return nil
	}

	res, err := Upsert(context.Background(), session(t, store), projectNodes(5), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Get(stats.NodesUpserted))
	assert.Equal(t, 2, res.Get(stats.NodesFailed))
	assert.Equal(t, 2, res.Get(stats.Labeled(stats.NodesFailed, "Project")))
	assert.Equal(t, 3, store.NodeCount(model.LabelProject))
}

func TestUpsert_Idempotent(t *testing.T) {
	store := driver.NewMemoryStore()
	s := session(t, store)
	for range 2 {
		_, err := Upsert(context.Background(), s, projectNodes(3), 0, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.NodeCount(model.LabelProject))
}

func TestNodeWriter_FlushesAtBatchSize(t *testing.T) {
	store := driver.NewMemoryStore()
	var batches []int
	store.FailNodes = func(nodes []model.Node) error {
		batches = append(batches, len(nodes))
		return nil
	}
	w := NewNodeWriter(session(t, store), 2, nil)
	for _, n := range projectNodes(5) {
		require.NoError(t, w.Add(context.Background(), n))
	}
	assert.Equal(t, []int{2, 2}, batches)
	assert.Equal(t, 4, w.Stats().Get(stats.NodesUpserted), "buffered nodes are not counted")
	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, []int{2, 2, 1}, batches)
}

func TestNodeWriter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewNodeWriter(session(t, driver.NewMemoryStore()), 1, nil)
	cancel()
	assert.ErrorIs(t, w.Add(ctx, projectNodes(1)[0]), context.Canceled)
}

func TestEdgeWriter_MissingEndpoint(t *testing.T) {
	store := driver.NewMemoryStore()
	s := session(t, store)
	nodes := projectNodes(2)
	_, err := Upsert(context.Background(), s, nodes, 10, nil)
	require.NoError(t, err)

	ds := model.ByGlobalID(model.LabelDataset, identity.GlobalID("10.5067/NOPE"))
	edges := []model.Edge{
		{Type: model.RelOfProject, Source: ds, Target: nodes[0].Endpoint()},
		{Type: model.RelHasSubcategory, Source: nodes[0].Endpoint(), Target: nodes[1].Endpoint()},
	}
	res, err := Ingest(context.Background(), s, edges, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Get(stats.EdgesMissingEndpoint))
	assert.Equal(t, 1, res.Get(stats.Labeled(stats.EdgesMissingEndpoint, "OF_PROJECT")))
	assert.Equal(t, 1, res.Get(stats.EdgesMerged))
	assert.Equal(t, 1, store.EdgeCount(""))
}

func TestEdgeWriter_FailedBatchCounted(t *testing.T) {
	store := driver.NewMemoryStore()
	store.FailEdges = func([]model.Edge) error { return errors.New("deadlock") }
	nodes := projectNodes(2)
	edges := []model.Edge{{Type: model.RelHasSubcategory, Source: nodes[0].Endpoint(), Target: nodes[1].Endpoint()}}

	res, err := Ingest(context.Background(), session(t, store), edges, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Get(stats.EdgesFailed))
	assert.Equal(t, 0, res.Get(stats.EdgesMerged))
}

func TestEdgeWriter_FlushesNodeDependenciesFirst(t *testing.T) {
	store := driver.NewStrictMemoryStore()
	s := session(t, store)
	nodes := NewNodeWriter(s, 100, nil)
	edges := NewEdgeWriter(s, 1, nil, nodes)

	a, b := extraction.KeywordNode("ATMOSPHERE").Node, extraction.KeywordNode("AEROSOLS").Node
	require.NoError(t, nodes.Add(context.Background(), a))
	require.NoError(t, nodes.Add(context.Background(), b))
	require.NoError(t, edges.Add(context.Background(), model.Edge{Type: model.RelHasSubcategory, Source: a.Endpoint(), Target: b.Endpoint()}))

	assert.Equal(t, 0, store.Violations())
	assert.Equal(t, 1, edges.Stats().Get(stats.EdgesMerged))
}

const keywordCSV = "\ufeffCategory,Topic,Term,Variable_Level_1,Variable_Level_2,Variable_Level_3,Detailed_Variable\n" +
	"EARTH SCIENCE,ATMOSPHERE,AEROSOLS,,,,\n" +
	"EARTH SCIENCE,ATMOSPHERE,AEROSOLS,AEROSOL OPTICAL DEPTH,,,\n" +
	"EARTH SCIENCE,ATMOSPHERE,AEROSOLS,,CARBON,,BLACK CARBON\n" +
	"EARTH SCIENCE,HUMAN DIMENSIONS,NATURAL HAZARDS,FLOODS,,,\n"

func TestKeywordChain(t *testing.T) {
	chain := KeywordChain(map[string]string{
		"Topic":             "ATMOSPHERE",
		"Term":              " AEROSOLS ",
		"Variable_Level_2":  "CARBON",
		"Detailed_Variable": "BLACK CARBON",
	})
	assert.Equal(t, []string{"ATMOSPHERE", "AEROSOLS", "CARBON", "BLACK CARBON"}, chain)
	assert.Empty(t, KeywordChain(map[string]string{"Category": "EARTH SCIENCE"}))
}

func TestLoadKeywords(t *testing.T) {
	store := driver.NewStrictMemoryStore()
	path := writeFile(t, t.TempDir(), "keywords.csv", keywordCSV)

	res, err := LoadKeywords(context.Background(), session(t, store), path, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Get(stats.KeywordRows))
	assert.Equal(t, 0, store.Violations())

	// ATMOSPHERE AEROSOLS "AEROSOL OPTICAL DEPTH" CARBON "BLACK CARBON"
	// "HUMAN DIMENSIONS" "NATURAL HAZARDS" FLOODS
	assert.Equal(t, 8, store.NodeCount(model.LabelScienceKeyword))
	kw := func(s string) model.Endpoint { return extraction.KeywordNode(s).Node.Endpoint() }
	assert.True(t, store.HasEdge(model.RelHasSubcategory, kw("ATMOSPHERE"), kw("AEROSOLS")))
	assert.True(t, store.HasEdge(model.RelHasSubcategory, kw("AEROSOLS"), kw("CARBON")), "empty levels are skipped")
	assert.True(t, store.HasEdge(model.RelHasSubcategory, kw("CARBON"), kw("BLACK CARBON")))
	assert.True(t, store.HasEdge(model.RelHasSubcategory, kw("NATURAL HAZARDS"), kw("FLOODS")))
	assert.Equal(t, 6, store.EdgeCount(model.RelHasSubcategory))
}

func TestLoadKeywords_InvalidTermsAreSkipped(t *testing.T) {
	store := driver.NewStrictMemoryStore()
	body := "Topic,Term,Variable_Level_1\n" +
		"ATMOSPHERE,BAD\xff,AEROSOLS\n" +
		"OCEANS,WORSE\xfe,\n"
	path := writeFile(t, t.TempDir(), "keywords.csv", body)

	res, err := LoadKeywords(context.Background(), session(t, store), path, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Get(stats.NodesSkipped))
	assert.Equal(t, 2, res.Get(stats.Labeled(stats.NodesSkipped, string(model.LabelScienceKeyword))))
	assert.Equal(t, 3, store.NodeCount(model.LabelScienceKeyword), "ATMOSPHERE AEROSOLS OCEANS")
	_, shared := store.Node(model.LabelScienceKeyword, "")
	assert.False(t, shared)

	kw := func(s string) model.Endpoint { return extraction.KeywordNode(s).Node.Endpoint() }
	assert.True(t, store.HasEdge(model.RelHasSubcategory, kw("ATMOSPHERE"), kw("AEROSOLS")))
	assert.Equal(t, 1, store.EdgeCount(model.RelHasSubcategory))
	assert.Equal(t, 0, store.Violations())
}

func TestLoadKeywords_Unreadable(t *testing.T) {
	_, err := LoadKeywords(context.Background(), session(t, driver.NewMemoryStore()), filepath.Join(t.TempDir(), "none.csv"), 0, nil)
	var readErr *SourceReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, ErrSourceRead)
}

const publicationsJSON = `[
  {"DOI": "10.1/pub-a", "Title": "Aerosols over Africa", "Year": 2019,
   "Abstract": "No abstract available", "Authors": ["Ada", "Grace"],
   "tags": [{"tag": "doi:10.5067/A"}, {"tag": "doi:10.5067/MISSING"}, {"tag": "mission"}],
   "Cited-References": [{"Shortname": "B"}]},
  {"DOI": "", "Title": "no doi"},
  {"DOI": "10.1/pub-b", "Title": null, "Abstract": "  ", "Authors": "Solo"}
]`

func TestPublications(t *testing.T) {
	store := driver.NewMemoryStore()
	s := session(t, store)
	dir := t.TempDir()
	path := writeFile(t, dir, "pubs.json", publicationsJSON)

	_, err := Upsert(context.Background(), s, []model.Node{
		{Label: model.LabelDataset, GlobalID: identity.GlobalID("10.5067/A"), Attributes: map[string]any{"shortName": "A"}},
		{Label: model.LabelDataset, GlobalID: identity.GlobalID("10.5067/B"), Attributes: map[string]any{"shortName": "B"}},
	}, 10, nil)
	require.NoError(t, err)

	res, err := LoadPublicationNodes(context.Background(), s, path, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Get(stats.PublicationsLoaded))
	assert.Equal(t, 2, res.Get(stats.NodesUpserted))
	assert.Equal(t, 1, res.Get(stats.NodesSkipped))

	a, ok := store.Node(model.LabelPublication, identity.GlobalID("10.1/pub-a"))
	require.True(t, ok)
	assert.Equal(t, "", a["abstract"])
	assert.Equal(t, "2019", a["year"])
	assert.Equal(t, "Ada, Grace", a["authors"])
	b, ok := store.Node(model.LabelPublication, identity.GlobalID("10.1/pub-b"))
	require.True(t, ok)
	assert.Equal(t, "", b["abstract"])
	assert.NotContains(t, b, "title")

	res, err = LoadPublicationEdges(context.Background(), s, path, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Get(stats.EdgesMerged))
	assert.Equal(t, 1, res.Get(stats.EdgesMissingEndpoint))

	pub := model.ByGlobalID(model.LabelPublication, identity.GlobalID("10.1/pub-a"))
	assert.True(t, store.HasEdge(model.RelUsesDataset, pub, model.ByGlobalID(model.LabelDataset, identity.GlobalID("10.5067/A"))))
	assert.True(t, store.HasEdge(model.RelUsesDataset, pub, model.Endpoint{Label: model.LabelDataset, Property: "shortName", Value: "B"}))
}

func TestReadPublications_Malformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pubs.json", `{"not": "an array"}`)
	_, err := ReadPublications(path)
	assert.ErrorIs(t, err, ErrSourceRead)
}
