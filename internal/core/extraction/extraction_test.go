package extraction

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/scigraph/internal/core/identity"
	"github.com/agenthands/scigraph/internal/core/model"
)

const fullDocument = `{
	"DOI": {"DOI": "10.5067/MODIS/MOD08_M3.061"},
	"CMR_ID": "C1000000001-LAADS",
	"ShortName": "MOD08_M3",
	"EntryTitle": "MODIS/Terra Aerosol Cloud Water Vapor Ozone Monthly L3 Global 1Deg CMG",
	"Abstract": "Monthly\nglobal aggregates.",
	"TemporalExtents": [{"RangeDateTimes": [{"BeginningDateTime": "2000-02-01T00:00:00.000Z", "EndingDateTime": ""}]}],
	"DataCenters": [
		{"ShortName": "NASA/GSFC/SED/ESD/TISL/LAADS", "LongName": "LAADS DAAC", "Roles": ["ARCHIVER", "DISTRIBUTOR"],
		 "ContactInformation": {"RelatedUrls": [{"URL": "https://ladsweb.modaps.eosdis.nasa.gov"}]}},
		{"ShortName": "NASA/GSFC/EOS/MODIS", "Roles": ["ORIGINATOR"]}
	],
	"Platforms": [{"ShortName": "Terra", "Type": "Earth Observation Satellites",
		"Instruments": [{"ShortName": "MODIS", "LongName": "Moderate-Resolution Imaging Spectroradiometer"}, {"LongName": "unnamed"}]}],
	"Projects": [{"ShortName": "EOS"}],
	"ScienceKeywords": [
		{"Category": "EARTH SCIENCE", "Topic": "ATMOSPHERE", "Term": "AEROSOLS", "VariableLevel1": "AEROSOL OPTICAL DEPTH/THICKNESS"},
		{"Category": "EARTH SCIENCE", "Topic": "ATMOSPHERE", "Term": "CLOUDS"}
	]
}`

func decode(t *testing.T, raw string) *model.DatasetDocument {
	t.Helper()
	doc, err := DecodeDataset(strings.NewReader(raw))
	require.NoError(t, err)
	return doc
}

func TestDataset_Attributes(t *testing.T) {
	doc := decode(t, fullDocument)
	out := Dataset(doc)
	require.Len(t, out, 1)
	require.True(t, out[0].OK())

	n := out[0].Node
	assert.Equal(t, identity.GlobalID("10.5067/MODIS/MOD08_M3.061"), n.GlobalID)
	assert.Equal(t, "MOD08_M3", n.Attributes["shortName"])
	assert.Equal(t, "NASA/GSFC/SED/ESD/TISL/LAADS", n.Attributes["daac"])
	assert.Equal(t, "Monthlyglobal aggregates.", n.Attributes["abstract"])
	assert.Equal(t, "C1000000001-LAADS", n.Attributes["cmrId"])
	assert.Equal(t, "2000-02-01T00:00:00.000Z", n.Attributes["temporalExtentStart"])
	assert.Nil(t, n.Attributes["temporalExtentEnd"])
	assert.Equal(t, UnknownFrequency, n.Attributes["temporalFrequency"])
}

func TestDataset_Sentinels(t *testing.T) {
	doc := decode(t, `{"DOI": {"DOI": "10.1/a"}}`)
	n := Dataset(doc)[0].Node
	assert.Equal(t, NotAvailable, n.Attributes["shortName"])
	assert.Equal(t, NotAvailable, n.Attributes["longName"])
	assert.Equal(t, NotAvailable, n.Attributes["abstract"])
	assert.Equal(t, NotAvailable, n.Attributes["cmrId"])
	assert.Equal(t, NotAvailable, n.Attributes["daac"])
	assert.Equal(t, UnknownFrequency, n.Attributes["temporalFrequency"])
}

func TestDataset_KeyFallsBackToCatalogID(t *testing.T) {
	doc := decode(t, `{"CMR_ID": "C123-PROV"}`)
	out := Dataset(doc)
	require.True(t, out[0].OK())
	assert.Equal(t, identity.GlobalID("C123-PROV"), out[0].Node.GlobalID)
	assert.Nil(t, out[0].Node.Attributes["doi"])
}

func TestDataset_SkippedWithoutAnyKey(t *testing.T) {
	doc := decode(t, `{"ShortName": "orphan", "DataCenters": [{"ShortName": "NASA/X"}]}`)
	out := Dataset(doc)
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, ErrMissingRequired)

	for _, e := range Edges(doc) {
		assert.NotEqual(t, model.RelHasDataset, e.Type)
	}
}

func TestNodes_SkipsEntriesWithoutShortName(t *testing.T) {
	doc := decode(t, fullDocument)
	var ok, skipped int
	byLabel := map[model.Label]int{}
	for _, o := range Nodes(doc) {
		if o.OK() {
			ok++
			byLabel[o.Node.Label]++
		} else {
			skipped++
			assert.ErrorIs(t, o.Err, ErrMissingRequired)
		}
	}
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, byLabel[model.LabelDataset])
	assert.Equal(t, 2, byLabel[model.LabelDataCenter])
	assert.Equal(t, 1, byLabel[model.LabelPlatform])
	assert.Equal(t, 1, byLabel[model.LabelInstrument])
	assert.Equal(t, 1, byLabel[model.LabelProject])
	assert.Equal(t, 4, byLabel[model.LabelScienceKeyword])
}

func TestDataCenters_URLAndDefaults(t *testing.T) {
	doc := decode(t, fullDocument)
	out := DataCenters(doc)
	require.Len(t, out, 2)
	assert.Equal(t, "https://ladsweb.modaps.eosdis.nasa.gov", out[0].Node.Attributes["url"])
	assert.Equal(t, NotAvailable, out[1].Node.Attributes["url"])
	assert.Equal(t, NotAvailable, out[1].Node.Attributes["longName"])
}

func TestEdges(t *testing.T) {
	doc := decode(t, fullDocument)
	counts := map[model.RelType]int{}
	for _, e := range Edges(doc) {
		counts[e.Type]++
	}
	assert.Equal(t, 2, counts[model.RelHasDataset])
	assert.Equal(t, 1, counts[model.RelHasPlatform])
	assert.Equal(t, 1, counts[model.RelHasInstrument])
	assert.Equal(t, 1, counts[model.RelOfProject])
	assert.Equal(t, 4, counts[model.RelHasScienceKeyword])
}

func TestInvalidNamesAreSkipped(t *testing.T) {
	doc := decode(t, fullDocument)
	doc.Projects[0].ShortName = "EOS\xff"
	doc.Platforms[0].Instruments[0].ShortName = "MODIS\xfe"
	doc.ScienceKeywords[1].Term = "CLOUDS\xff"

	invalid := 0
	for _, o := range Nodes(doc) {
		if o.OK() {
			assert.NotEmpty(t, o.Node.GlobalID, "%s", o.Node.Label)
			continue
		}
		if errors.Is(o.Err, identity.ErrInvalidKey) {
			invalid++
		}
	}
	assert.Equal(t, 3, invalid)

	counts := map[model.RelType]int{}
	for _, e := range Edges(doc) {
		counts[e.Type]++
		assert.NotEmpty(t, e.Target.Value)
	}
	assert.Equal(t, 0, counts[model.RelOfProject])
	assert.Equal(t, 0, counts[model.RelHasInstrument])
	assert.Equal(t, 3, counts[model.RelHasScienceKeyword])

	out := KeywordNode("BAD\xff")
	assert.ErrorIs(t, out.Err, identity.ErrInvalidKey)
	assert.Equal(t, model.LabelScienceKeyword, out.Node.Label)
}

func TestPublicationEdges_InvalidDatasetDOI(t *testing.T) {
	rec := model.PublicationRecord{DOI: "10.1/p", Tags: []model.PublicationTag{{Tag: "doi:10.5067/\xff"}, {Tag: "doi:10.5067/A"}}}
	edges := PublicationEdges(rec)
	require.Len(t, edges, 1)
	assert.Equal(t, identity.GlobalID("10.5067/A"), edges[0].Target.Value)
}

func TestKeywordTerms_Deduplicated(t *testing.T) {
	doc := decode(t, fullDocument)
	assert.Equal(t, []string{"ATMOSPHERE", "AEROSOLS", "AEROSOL OPTICAL DEPTH/THICKNESS", "CLOUDS"}, KeywordTerms(doc))
}

func TestDecodeDataset_Malformed(t *testing.T) {
	_, err := DecodeDataset(strings.NewReader(`{"DOI": `))
	assert.Error(t, err)
}
