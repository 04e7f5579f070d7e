package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/scigraph/internal/core/extraction"
	"github.com/agenthands/scigraph/internal/core/stats"
)

// cmrServer answers like collections.umm_json for a fixed set of DOIs.
func cmrServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doi := r.URL.Query().Get("doi")
		switch doi {
		case "10.5067/DAILY":
			_, _ = w.Write([]byte(`{"items": [{"meta": {"concept-id": "C100-LPDAAC"}, "umm": {
				"DOI": {"DOI": "10.5067/DAILY"}, "ShortName": "D1",
				"EntryTitle": "Daily surface reflectance", "Abstract": "Produced monthly as well.",
				"DataCenters": [{"ShortName": "LP DAAC", "Roles": ["ARCHIVER"]}]}}]}`))
		case "10.5067/NOFREQ":
			_, _ = w.Write([]byte(`{"items": [{"meta": {"concept-id": "C200"}, "umm": {
				"DOI": {"DOI": "10.5067/NOFREQ"}, "EntryTitle": "Static map"}}]}`))
		case "10.5067/NOID":
			_, _ = w.Write([]byte(`{"items": [{"meta": {}, "umm": {"EntryTitle": "x"}}]}`))
		case "10.5067/BROKEN":
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`{"items": []}`))
		}
	}))
}

func TestCMRSource_Fetch(t *testing.T) {
	srv := cmrServer(t)
	defer srv.Close()
	src := NewCMRSource(srv.URL, 5*time.Second, 0)

	md, err := src.Fetch(context.Background(), "10.5067/DAILY")
	require.NoError(t, err)
	assert.Equal(t, "C100-LPDAAC", md.CMRID)
	assert.Equal(t, "C100-LPDAAC", md.UMM["CMR_ID"])

	_, err = src.Fetch(context.Background(), "10.5067/NOID")
	assert.ErrorIs(t, err, ErrMissingCMRID)
	_, err = src.Fetch(context.Background(), "10.5067/UNKNOWN")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = src.Fetch(context.Background(), "10.5067/BROKEN")
	assert.ErrorIs(t, err, ErrUnexpectedHTTP)
}

func TestFrequency(t *testing.T) {
	cases := []struct {
		title, abstract string
		want            string
		conflict        bool
	}{
		{"MODIS Daily L3", "", "daily", false},
		{"Static map", "Updated weekly.", "weekly", false},
		{"Hourly precipitation", "aggregated daily", "hourly", true},
		{"Static map", "", UnknownFrequency, false},
	}
	for _, tc := range cases {
		got, conflict := Frequency(map[string]any{"EntryTitle": tc.title, "Abstract": tc.abstract})
		assert.Equal(t, tc.want, got, tc.title)
		assert.Equal(t, tc.conflict, conflict, tc.title)
	}
}

func TestHarvester_Run(t *testing.T) {
	srv := cmrServer(t)
	defer srv.Close()
	dir := t.TempDir()

	h := NewHarvester(NewCMRSource(srv.URL, 5*time.Second, 0), dir, 2, nil)
	res, err := h.Run(context.Background(), []string{
		"10.5067/DAILY", "10.5067/NOFREQ", "10.5067/NOID", "10.5067/BROKEN", "10.5067/UNKNOWN",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Get(stats.HarvestFetched))
	assert.Equal(t, 3, res.Get(stats.HarvestFailed))
	assert.Equal(t, 1, res.Get(stats.HarvestMissingCMRID))
	assert.Equal(t, 1, res.Get(stats.HarvestUnknownFrequency))
	assert.Equal(t, 1, res.Get(stats.HarvestFrequencyConflict))

	path := filepath.Join(dir, "LP DAAC", "10.5067_DAILY.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var umm map[string]any
	require.NoError(t, json.Unmarshal(raw, &umm))
	assert.Equal(t, "daily", umm["Frequency"])

	// Harvested files are valid pipeline input.
	doc, err := extraction.ReadDataset(path)
	require.NoError(t, err)
	assert.Equal(t, "C100-LPDAAC", doc.CMRID)
	assert.FileExists(t, filepath.Join(dir, "Unknown", "10.5067_NOFREQ.json"))
}

func TestDecodeDOIs(t *testing.T) {
	dois, err := DecodeDOIs(strings.NewReader("\ufeffid,DOI_NAME\n1,10.5067/A\n2, \n3,10.5067/B\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.5067/A", "10.5067/B"}, dois)

	dois, err = DecodeDOIs(strings.NewReader("doi\n10.1/x\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1/x"}, dois)

	_, err = DecodeDOIs(strings.NewReader("name\nfoo\n"))
	assert.Error(t, err)
}
