// Package stats holds per-run counters. Every phase returns a RunStats value
// and the caller merges them; there is no shared counter state.
package stats

import (
	"encoding/json"
	"sort"
)

// Counter names shared across phases.
const (
	FilesScanned = "filesScanned"
	FilesFailed  = "filesFailed"
	KeywordRows  = "keywordRows"

	NodesUpserted = "nodesUpserted"
	NodesFailed   = "nodesFailed"
	NodesSkipped  = "nodesSkipped"

	EdgesMerged          = "edgesMerged"
	EdgesFailed          = "edgesFailed"
	EdgesMissingEndpoint = "edgesMissingEndpoint"

	CitingCreated      = "citingCreated"
	CitingExisted      = "citingExisted"
	CitedCreated       = "citedCreated"
	CitedExisted       = "citedExisted"
	CitedNotFound      = "citedNotFound"
	CitesMerged        = "citesMerged"
	RecordsFailed      = "recordsFailed"
	FallbackRuns       = "fallbackRuns"
	CitationChunks     = "citationChunks"
	CitationEntries    = "citationEntries"
	PublicationsLoaded = "publicationsLoaded"

	ResearchProcessed       = "researchProcessed"
	ResearchMissingAbstract = "researchMissingAbstract"
	ResearchMissingKeyword  = "researchMissingKeyword"
	ResearchClassifyFailed  = "researchClassifyFailed"
	ResearchLinked          = "researchLinked"

	HarvestFetched           = "harvestFetched"
	HarvestFailed            = "harvestFailed"
	HarvestMissingCMRID      = "harvestMissingCmrId"
	HarvestUnknownFrequency  = "harvestUnknownFrequency"
	HarvestFrequencyConflict = "harvestFrequencyConflict"
)

// Labeled qualifies a counter, e.g. Labeled(NodesUpserted, "Dataset").
func Labeled(key, qualifier string) string {
	return key + "." + qualifier
}

// RunStats is a set of named counters. The zero value is ready to use.
type RunStats struct {
	counts map[string]int
}

func New() RunStats {
	return RunStats{counts: map[string]int{}}
}

func (s *RunStats) Add(key string, n int) {
	if n == 0 {
		return
	}
	if s.counts == nil {
		s.counts = map[string]int{}
	}
	s.counts[key] += n
}

func (s *RunStats) Inc(key string) { s.Add(key, 1) }

func (s RunStats) Get(key string) int { return s.counts[key] }

// Merge adds every counter of other into s.
func (s *RunStats) Merge(other RunStats) {
	for k, v := range other.counts {
		s.Add(k, v)
	}
}

// Keys returns counter names in sorted order.
func (s RunStats) Keys() []string {
	keys := make([]string, 0, len(s.counts))
	for k := range s.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s RunStats) Len() int { return len(s.counts) }

// Map returns a copy of the counters.
func (s RunStats) Map() map[string]int {
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Fields flattens the counters into zap-style key/value pairs in key order.
func (s RunStats) Fields() []interface{} {
	fields := make([]interface{}, 0, 2*len(s.counts))
	for _, k := range s.Keys() {
		fields = append(fields, k, s.counts[k])
	}
	return fields
}

func (s RunStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

func (s *RunStats) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.counts = m
	return nil
}
