package model

// Label is a node label in the property graph.
type Label string

const (
	LabelDataset        Label = "Dataset"
	LabelDataCenter     Label = "DataCenter"
	LabelPlatform       Label = "Platform"
	LabelInstrument     Label = "Instrument"
	LabelProject        Label = "Project"
	LabelScienceKeyword Label = "ScienceKeyword"
	LabelPublication    Label = "Publication"
)

// KeyProperty holds the deterministic identifier on every label.
const KeyProperty = "globalId"

// Labels lists every label the ingester writes, in constraint-declaration order.
func Labels() []Label {
	return []Label{
		LabelDataset,
		LabelDataCenter,
		LabelPlatform,
		LabelInstrument,
		LabelProject,
		LabelScienceKeyword,
		LabelPublication,
	}
}

// Node is one create-or-enrich record. A nil attribute value means "unknown"
// and never clears a value already stored.
type Node struct {
	Label      Label          `json:"label"`
	GlobalID   string         `json:"globalId"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// PublicationAbstract is the slice of a Publication node the research-area
// linker reads back from the store.
type PublicationAbstract struct {
	GlobalID string
	Abstract string
}

// Endpoint selects n by its globalId.
func (n Node) Endpoint() Endpoint {
	return ByGlobalID(n.Label, n.GlobalID)
}
