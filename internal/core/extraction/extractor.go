// Package extraction maps catalog documents onto graph records. Each mapper
// returns one Outcome per candidate record so callers can count skips
// without aborting the document.
package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agenthands/scigraph/internal/core/identity"
	"github.com/agenthands/scigraph/internal/core/model"
)

const (
	NotAvailable     = "N/A"
	UnknownFrequency = "Unknown"
	ArchiverRole     = "ARCHIVER"
)

var ErrMissingRequired = errors.New("required field missing")

// Outcome is a mapped record or the reason it was skipped.
type Outcome struct {
	Node model.Node
	Err  error
}

func (o Outcome) OK() bool { return o.Err == nil }

func skip(label model.Label, format string, args ...any) Outcome {
	return Outcome{
		Node: model.Node{Label: label},
		Err:  fmt.Errorf("%s: %w: %s", label, ErrMissingRequired, fmt.Sprintf(format, args...)),
	}
}

// keyed resolves key into a node of label. A key that cannot be resolved
// becomes a skip carrying identity.ErrInvalidKey.
func keyed(label model.Label, key string, attrs map[string]any) Outcome {
	id, err := identity.Resolve(key)
	if err != nil {
		return Outcome{Node: model.Node{Label: label}, Err: fmt.Errorf("%s: %w", label, err)}
	}
	return Outcome{Node: model.Node{Label: label, GlobalID: id.GlobalID, Attributes: attrs}}
}

// Ref is the globalId endpoint of key under label.
func Ref(label model.Label, key string) (model.Endpoint, error) {
	id, err := identity.Resolve(key)
	if err != nil {
		return model.Endpoint{}, err
	}
	return model.ByGlobalID(label, id.GlobalID), nil
}

func ReadDataset(path string) (*model.DatasetDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeDataset(f)
}

func DecodeDataset(r io.Reader) (*model.DatasetDocument, error) {
	var doc model.DatasetDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode dataset document: %w", err)
	}
	return &doc, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func orNil(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// DatasetKey is the DOI, or the catalog id when the document has no DOI.
func DatasetKey(doc *model.DatasetDocument) (string, error) {
	if doi := strings.TrimSpace(doc.DOI.DOI); doi != "" {
		return doi, nil
	}
	if id := strings.TrimSpace(doc.CMRID); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: neither DOI nor CMR_ID", ErrMissingRequired)
}

func datasetEndpoint(doc *model.DatasetDocument) (model.Endpoint, bool) {
	key, err := DatasetKey(doc)
	if err != nil {
		return model.Endpoint{}, false
	}
	id, err := identity.Resolve(key)
	if err != nil {
		return model.Endpoint{}, false
	}
	return model.ByGlobalID(model.LabelDataset, id.GlobalID), true
}

func Dataset(doc *model.DatasetDocument) []Outcome {
	key, err := DatasetKey(doc)
	if err != nil {
		return []Outcome{{Node: model.Node{Label: model.LabelDataset}, Err: err}}
	}
	id, err := identity.Resolve(key)
	if err != nil {
		return []Outcome{{Node: model.Node{Label: model.LabelDataset}, Err: err}}
	}

	var start, end any
	if len(doc.TemporalExtents) > 0 && len(doc.TemporalExtents[0].RangeDateTimes) > 0 {
		r := doc.TemporalExtents[0].RangeDateTimes[0]
		start, end = orNil(r.BeginningDateTime), orNil(r.EndingDateTime)
	}
	abstract := strings.ReplaceAll(orDefault(doc.Abstract, NotAvailable), "\n", "")

	return []Outcome{{Node: model.Node{
		Label:    model.LabelDataset,
		GlobalID: id.GlobalID,
		Attributes: map[string]any{
			"doi":                 orNil(doc.DOI.DOI),
			"shortName":           orDefault(doc.ShortName, NotAvailable),
			"longName":            orDefault(doc.EntryTitle, NotAvailable),
			"daac":                Daac(doc),
			"abstract":            abstract,
			"cmrId":               orDefault(doc.CMRID, NotAvailable),
			"temporalExtentStart": start,
			"temporalExtentEnd":   end,
			"temporalFrequency":   orDefault(doc.Frequency, UnknownFrequency),
		},
	}}}
}

// Daac is the short name of the first data center holding the ARCHIVER role.
func Daac(doc *model.DatasetDocument) string {
	for _, c := range doc.DataCenters {
		for _, role := range c.Roles {
			if role == ArchiverRole {
				return orDefault(c.ShortName, NotAvailable)
			}
		}
	}
	return NotAvailable
}

func DataCenters(doc *model.DatasetDocument) []Outcome {
	out := make([]Outcome, 0, len(doc.DataCenters))
	for i, c := range doc.DataCenters {
		if strings.TrimSpace(c.ShortName) == "" {
			out = append(out, skip(model.LabelDataCenter, "DataCenters[%d] has no ShortName", i))
			continue
		}
		url := NotAvailable
		if urls := c.ContactInformation.RelatedUrls; len(urls) > 0 {
			url = orDefault(urls[0].URL, NotAvailable)
		}
		out = append(out, keyed(model.LabelDataCenter, c.ShortName, map[string]any{
			"shortName": c.ShortName,
			"longName":  orDefault(c.LongName, NotAvailable),
			"url":       url,
		}))
	}
	return out
}

func Platforms(doc *model.DatasetDocument) []Outcome {
	out := make([]Outcome, 0, len(doc.Platforms))
	for i, p := range doc.Platforms {
		if strings.TrimSpace(p.ShortName) == "" {
			out = append(out, skip(model.LabelPlatform, "Platforms[%d] has no ShortName", i))
			continue
		}
		out = append(out, keyed(model.LabelPlatform, p.ShortName, map[string]any{
			"shortName": p.ShortName,
			"longName":  orDefault(p.LongName, NotAvailable),
			"type":      orDefault(p.Type, NotAvailable),
		}))
	}
	return out
}

func Instruments(doc *model.DatasetDocument) []Outcome {
	var out []Outcome
	for i, p := range doc.Platforms {
		for j, in := range p.Instruments {
			if strings.TrimSpace(in.ShortName) == "" {
				out = append(out, skip(model.LabelInstrument, "Platforms[%d].Instruments[%d] has no ShortName", i, j))
				continue
			}
			out = append(out, keyed(model.LabelInstrument, in.ShortName, map[string]any{
				"shortName": in.ShortName,
				"longName":  orDefault(in.LongName, NotAvailable),
			}))
		}
	}
	return out
}

func Projects(doc *model.DatasetDocument) []Outcome {
	out := make([]Outcome, 0, len(doc.Projects))
	for i, p := range doc.Projects {
		if strings.TrimSpace(p.ShortName) == "" {
			out = append(out, skip(model.LabelProject, "Projects[%d] has no ShortName", i))
			continue
		}
		out = append(out, keyed(model.LabelProject, p.ShortName, map[string]any{
			"shortName": p.ShortName,
			"longName":  orDefault(p.LongName, NotAvailable),
		}))
	}
	return out
}

// KeywordTerms returns the non-empty hierarchy values of every keyword
// entry, de-duplicated in document order.
func KeywordTerms(doc *model.DatasetDocument) []string {
	seen := map[string]struct{}{}
	var terms []string
	for _, k := range doc.ScienceKeywords {
		for _, level := range k.Levels() {
			level = strings.TrimSpace(level)
			if level == "" {
				continue
			}
			if _, ok := seen[level]; ok {
				continue
			}
			seen[level] = struct{}{}
			terms = append(terms, level)
		}
	}
	return terms
}

// KeywordNode is the ScienceKeyword record for term, or a skip when the term
// is not a usable key.
func KeywordNode(term string) Outcome {
	return keyed(model.LabelScienceKeyword, term, map[string]any{"name": term})
}

func ScienceKeywords(doc *model.DatasetDocument) []Outcome {
	terms := KeywordTerms(doc)
	out := make([]Outcome, 0, len(terms))
	for _, t := range terms {
		out = append(out, KeywordNode(t))
	}
	return out
}

// Nodes runs every mapper over doc. Dataset comes first.
func Nodes(doc *model.DatasetDocument) []Outcome {
	var out []Outcome
	out = append(out, Dataset(doc)...)
	out = append(out, DataCenters(doc)...)
	out = append(out, Platforms(doc)...)
	out = append(out, Instruments(doc)...)
	out = append(out, Projects(doc)...)
	out = append(out, ScienceKeywords(doc)...)
	return out
}

// Edges lists the relationship candidates carried by doc. A document with no
// dataset key yields only Platform→Instrument edges. Names that cannot be
// resolved to an identity produce no edges.
func Edges(doc *model.DatasetDocument) []model.Edge {
	var edges []model.Edge
	ds, hasDataset := datasetEndpoint(doc)
	link := func(rel model.RelType, source model.Endpoint, label model.Label, key string) {
		if strings.TrimSpace(key) == "" {
			return
		}
		target, err := Ref(label, key)
		if err != nil {
			return
		}
		edges = append(edges, model.Edge{Type: rel, Source: source, Target: target})
	}

	if hasDataset {
		for _, c := range doc.DataCenters {
			if strings.TrimSpace(c.ShortName) == "" {
				continue
			}
			center, err := Ref(model.LabelDataCenter, c.ShortName)
			if err != nil {
				continue
			}
			edges = append(edges, model.Edge{Type: model.RelHasDataset, Source: center, Target: ds})
		}
	}
	for _, p := range doc.Platforms {
		if strings.TrimSpace(p.ShortName) == "" {
			continue
		}
		platform, err := Ref(model.LabelPlatform, p.ShortName)
		if err != nil {
			continue
		}
		if hasDataset {
			edges = append(edges, model.Edge{Type: model.RelHasPlatform, Source: ds, Target: platform})
		}
		for _, in := range p.Instruments {
			link(model.RelHasInstrument, platform, model.LabelInstrument, in.ShortName)
		}
	}
	if !hasDataset {
		return edges
	}
	for _, p := range doc.Projects {
		link(model.RelOfProject, ds, model.LabelProject, p.ShortName)
	}
	for _, term := range KeywordTerms(doc) {
		link(model.RelHasScienceKeyword, ds, model.LabelScienceKeyword, term)
	}
	return edges
}
