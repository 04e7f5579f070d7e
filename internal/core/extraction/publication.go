package extraction

import (
	"strings"

	"github.com/agenthands/scigraph/internal/core/identity"
	"github.com/agenthands/scigraph/internal/core/model"
)

const (
	noAbstract = "No abstract available"
	doiTag     = "doi:"
)

// NormalizeAbstract maps the catalog's placeholder and blank text to "".
func NormalizeAbstract(s string) string {
	if t := strings.TrimSpace(s); t == "" || t == noAbstract {
		return ""
	}
	return s
}

func publicationNode(doi, title, year, abstract string, authors model.Authors) Outcome {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return skip(model.LabelPublication, "publication has no DOI")
	}
	id, err := identity.Resolve(doi)
	if err != nil {
		return Outcome{Node: model.Node{Label: model.LabelPublication}, Err: err}
	}
	var joined any
	if len(authors) > 0 {
		joined = authors.Joined()
	}
	return Outcome{Node: model.Node{
		Label:    model.LabelPublication,
		GlobalID: id.GlobalID,
		Attributes: map[string]any{
			"doi":      doi,
			"title":    orNil(title),
			"year":     orNil(year),
			"abstract": NormalizeAbstract(abstract),
			"authors":  joined,
		},
	}}
}

func Publication(rec model.PublicationRecord) Outcome {
	return publicationNode(rec.DOI, rec.Title.String(), rec.Year.String(), rec.Abstract.String(), rec.Authors)
}

func CitedPublication(c model.CitedPublication) Outcome {
	return publicationNode(c.DOI, c.Title.String(), c.Year.String(), c.Abstract.String(), c.Authors)
}

// PlaceholderPublication is the minimal node written for a citing DOI.
func PlaceholderPublication(doi string) Outcome {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return skip(model.LabelPublication, "citing DOI is empty")
	}
	id, err := identity.Resolve(doi)
	if err != nil {
		return Outcome{Node: model.Node{Label: model.LabelPublication}, Err: err}
	}
	return Outcome{Node: model.Node{
		Label:      model.LabelPublication,
		GlobalID:   id.GlobalID,
		Attributes: map[string]any{"doi": doi},
	}}
}

// DatasetDOIs returns the values of "doi:<x>" tags.
func DatasetDOIs(rec model.PublicationRecord) []string {
	var dois []string
	for _, t := range rec.Tags {
		if v, ok := strings.CutPrefix(t.Tag, doiTag); ok && strings.TrimSpace(v) != "" {
			dois = append(dois, strings.TrimSpace(v))
		}
	}
	return dois
}

// PublicationEdges lists USES_DATASET candidates. Tagged DOIs target the
// Dataset globalId; cited short names target Dataset.shortName.
func PublicationEdges(rec model.PublicationRecord) []model.Edge {
	doi := strings.TrimSpace(rec.DOI)
	if doi == "" {
		return nil
	}
	pub, err := Ref(model.LabelPublication, doi)
	if err != nil {
		return nil
	}
	var edges []model.Edge
	for _, d := range DatasetDOIs(rec) {
		target, err := Ref(model.LabelDataset, d)
		if err != nil {
			continue
		}
		edges = append(edges, model.Edge{Type: model.RelUsesDataset, Source: pub, Target: target})
	}
	for _, ref := range rec.CitedReferences {
		name := strings.TrimSpace(ref.Shortname)
		if name == "" {
			continue
		}
		edges = append(edges, model.Edge{
			Type:   model.RelUsesDataset,
			Source: pub,
			Target: model.Endpoint{Label: model.LabelDataset, Property: "shortName", Value: name},
		})
	}
	return edges
}
