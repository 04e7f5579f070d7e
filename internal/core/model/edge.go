package model

import "fmt"

// RelType is a relationship type.
type RelType string

const (
	RelHasDataset             RelType = "HAS_DATASET"
	RelHasPlatform            RelType = "HAS_PLATFORM"
	RelHasInstrument          RelType = "HAS_INSTRUMENT"
	RelOfProject              RelType = "OF_PROJECT"
	RelHasScienceKeyword      RelType = "HAS_SCIENCEKEYWORD"
	RelHasSubcategory         RelType = "HAS_SUBCATEGORY"
	RelUsesDataset            RelType = "USES_DATASET"
	RelHasAppliedResearchArea RelType = "HAS_APPLIEDRESEARCHAREA"
	RelCites                  RelType = "CITES"
)

// Endpoint selects the node at one end of an edge. Property is almost always
// KeyProperty; publications may reference datasets by shortName instead.
type Endpoint struct {
	Label    Label  `json:"label"`
	Property string `json:"property"`
	Value    string `json:"value"`
}

// ByGlobalID is the common endpoint form.
func ByGlobalID(label Label, globalID string) Endpoint {
	return Endpoint{Label: label, Property: KeyProperty, Value: globalID}
}

func (e Endpoint) String() string {
	return fmt.Sprintf("(:%s {%s: %q})", e.Label, e.Property, e.Value)
}

// Edge is a relationship candidate: it exists in the graph only once both
// endpoints match.
type Edge struct {
	Type   RelType  `json:"type"`
	Source Endpoint `json:"source"`
	Target Endpoint `json:"target"`
}

// Shape groups edges that can share one UNWIND statement.
type Shape struct {
	Type           RelType
	SourceLabel    Label
	SourceProperty string
	TargetLabel    Label
	TargetProperty string
}

func (e Edge) Shape() Shape {
	return Shape{
		Type:           e.Type,
		SourceLabel:    e.Source.Label,
		SourceProperty: e.Source.Property,
		TargetLabel:    e.Target.Label,
		TargetProperty: e.Target.Property,
	}
}

func (e Edge) String() string {
	return fmt.Sprintf("%s-[:%s]->%s", e.Source, e.Type, e.Target)
}
