package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DatasetDocument is one per-dataset catalog record (UMM-C JSON plus the
// CMR_ID attached at harvest time).
type DatasetDocument struct {
	DOI             DOIField              `json:"DOI"`
	CMRID           string                `json:"CMR_ID"`
	ShortName       string                `json:"ShortName"`
	EntryTitle      string                `json:"EntryTitle"`
	Abstract        string                `json:"Abstract"`
	Frequency       string                `json:"Frequency"`
	TemporalExtents []TemporalExtent      `json:"TemporalExtents"`
	DataCenters     []DataCenterEntry     `json:"DataCenters"`
	Platforms       []PlatformEntry       `json:"Platforms"`
	Projects        []ProjectEntry        `json:"Projects"`
	ScienceKeywords []ScienceKeywordEntry `json:"ScienceKeywords"`
}

type DOIField struct {
	DOI string `json:"DOI"`
}

type TemporalExtent struct {
	RangeDateTimes []RangeDateTime `json:"RangeDateTimes"`
}

type RangeDateTime struct {
	BeginningDateTime string `json:"BeginningDateTime"`
	EndingDateTime    string `json:"EndingDateTime"`
}

type DataCenterEntry struct {
	ShortName          string             `json:"ShortName"`
	LongName           string             `json:"LongName"`
	Roles              []string           `json:"Roles"`
	ContactInformation ContactInformation `json:"ContactInformation"`
}

type ContactInformation struct {
	RelatedUrls []RelatedURL `json:"RelatedUrls"`
}

type RelatedURL struct {
	URL string `json:"URL"`
}

type PlatformEntry struct {
	ShortName   string            `json:"ShortName"`
	LongName    string            `json:"LongName"`
	Type        string            `json:"Type"`
	Instruments []InstrumentEntry `json:"Instruments"`
}

type InstrumentEntry struct {
	ShortName string `json:"ShortName"`
	LongName  string `json:"LongName"`
}

type ProjectEntry struct {
	ShortName string `json:"ShortName"`
	LongName  string `json:"LongName"`
}

// ScienceKeywordEntry accepts both the UMM field names and the underscore
// names used by the keyword CSV export.
type ScienceKeywordEntry struct {
	Category            string `json:"Category"`
	Topic               string `json:"Topic"`
	Term                string `json:"Term"`
	VariableLevel1      string `json:"VariableLevel1"`
	VariableLevel2      string `json:"VariableLevel2"`
	VariableLevel3      string `json:"VariableLevel3"`
	DetailedVariable    string `json:"DetailedVariable"`
	VariableLevel1Alt   string `json:"Variable_Level_1"`
	VariableLevel2Alt   string `json:"Variable_Level_2"`
	VariableLevel3Alt   string `json:"Variable_Level_3"`
	DetailedVariableAlt string `json:"Detailed_Variable"`
}

// Levels returns the hierarchy Topic → Term → VL1 → VL2 → VL3 → Detailed,
// keeping empty slots so callers can tell which level a value came from.
func (k ScienceKeywordEntry) Levels() []string {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	return []string{
		k.Topic,
		k.Term,
		pick(k.VariableLevel1, k.VariableLevel1Alt),
		pick(k.VariableLevel2, k.VariableLevel2Alt),
		pick(k.VariableLevel3, k.VariableLevel3Alt),
		pick(k.DetailedVariable, k.DetailedVariableAlt),
	}
}

// PublicationRecord is one entry of the publications metadata array.
type PublicationRecord struct {
	DOI             string           `json:"DOI"`
	Title           FlexString       `json:"Title"`
	Year            FlexString       `json:"Year"`
	Abstract        FlexString       `json:"Abstract"`
	Authors         Authors          `json:"Authors"`
	Tags            []PublicationTag `json:"tags"`
	CitedReferences []CitedReference `json:"Cited-References"`
}

type PublicationTag struct {
	Tag string `json:"tag"`
}

type CitedReference struct {
	Shortname string `json:"Shortname"`
}

// CitedPublication is one element of a citing DOI's fan-out list.
type CitedPublication struct {
	DOI      string     `json:"doi"`
	Title    FlexString `json:"title"`
	Year     FlexString `json:"year"`
	Abstract FlexString `json:"abstract"`
	Authors  Authors    `json:"authors"`
}

// FlexString decodes JSON strings, numbers and null into a string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Authors decodes either a list of names or one pre-joined string.
type Authors []string

func (a *Authors) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*a = nil
		} else {
			*a = Authors{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*a = list
	return nil
}

// Joined renders the author list the way it is stored on the node.
func (a Authors) Joined() string {
	return strings.Join(a, ", ")
}
