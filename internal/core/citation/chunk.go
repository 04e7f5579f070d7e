// Package citation builds the publication citation network in two phases:
// every node of every chunk first, then every CITES edge.
package citation

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/agenthands/scigraph/internal/core/model"
)

// Entry is one citing DOI and the publications it cites. Err is set when
// the cited list could not be decoded; the entry is then counted as a
// failed record by the chunk functions.
type Entry struct {
	CitingDOI string
	Cited     []model.CitedPublication
	Err       error
}

// Chunk splits entries into consecutive runs of at most size. Every entry
// lands in exactly one chunk and input order is kept.
func Chunk(entries []Entry, size int) [][]Entry {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]Entry, 0, (len(entries)+size-1)/size)
	for start := 0; start < len(entries); start += size {
		end := min(start+size, len(entries))
		chunks = append(chunks, entries[start:end:end])
	}
	return chunks
}

// LoadCitations reads the citing-DOI → cited-list object at path, keeping
// the key order of the file so chunking is reproducible.
func LoadCitations(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCitations(f)
}

func DecodeCitations(r io.Reader) ([]Entry, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode citations: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("decode citations: expected object, got %v", tok)
	}

	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return entries, fmt.Errorf("decode citations: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return entries, fmt.Errorf("decode citations: expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return entries, fmt.Errorf("decode citations[%q]: %w", key, err)
		}
		entry := Entry{CitingDOI: key}
		if err := json.Unmarshal(raw, &entry.Cited); err != nil {
			entry.Err = fmt.Errorf("cited list of %q: %w", key, err)
		}
		entries = append(entries, entry)
	}
	if _, err := dec.Token(); err != nil {
		return entries, fmt.Errorf("decode citations: %w", err)
	}
	return entries, nil
}
