package ingest

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/careatlas/evidence/internal/models"
)

func TestExtractMeta(t *testing.T) {
	meta := extractMeta("guidelines/ICMR_Diabetes_Guidelines_2018.json", "https://bucket/ICMR_Diabetes_Guidelines_2018.json")

	assert.Equal(t, "ICMR", meta.Organization)
	assert.Equal(t, "2018", meta.Year)
	assert.Equal(t, "ICMR_Diabetes_Guidelines_2018", meta.Title)
	assert.Equal(t, "https://bucket/ICMR_Diabetes_Guidelines_2018.json", meta.SourceURL)
}

func TestExtractMetaUnknowns(t *testing.T) {
	meta := extractMeta("misc/hypertension_notes.pdf", "https://bucket/misc/hypertension_notes.pdf")

	assert.Equal(t, "Unknown", meta.Organization)
	assert.Equal(t, "Unknown", meta.Year)
	assert.Equal(t, "hypertension_notes", meta.Title)
}

func TestExtractMetaOrgInDirectory(t *testing.T) {
	meta := extractMeta("mohfw/standard_treatment_2022.json", "")
	assert.Equal(t, "MOHFW", meta.Organization)
	assert.Equal(t, "2022", meta.Year)
}

func TestExtractMetaYearFromFilenameOnly(t *testing.T) {
	// A year in the directory must not leak into the document's year.
	meta := extractMeta("archive-2019/protocol.json", "")
	assert.Equal(t, "Unknown", meta.Year)
}

func TestChunkIDStableAndPositional(t *testing.T) {
	idPattern := regexp.MustCompile(`^[0-9a-f]{16}_\d+$`)

	a := chunkID("guidelines/doc.json", 0)
	b := chunkID("guidelines/doc.json", 0)
	c := chunkID("guidelines/doc.json", 1)
	d := chunkID("guidelines/other.json", 0)

	assert.Regexp(t, idPattern, a)
	assert.Equal(t, a, b, "same path and position must always yield the same id")
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestPrioritizeOrdersByTier(t *testing.T) {
	docs := []models.RawDocument{
		{Path: "misc/random_notes.json"},
		{Path: "guidelines/ICMR_guide.json"},
		{Path: "guidelines/diabetes_protocol.json"},
		{Path: "guidelines/WHO_cardio.json"},
	}

	ordered := prioritize(docs, "diabetes")

	assert.Equal(t, "guidelines/diabetes_protocol.json", ordered[0].Path)
	assert.Equal(t, "guidelines/ICMR_guide.json", ordered[1].Path)
	assert.Equal(t, "guidelines/WHO_cardio.json", ordered[2].Path)
	assert.Equal(t, "misc/random_notes.json", ordered[3].Path)
}

func TestPrioritizeStableWithinTier(t *testing.T) {
	docs := []models.RawDocument{
		{Path: "a/ICMR_one.json"},
		{Path: "b/ICMR_two.json"},
		{Path: "c/ICMR_three.json"},
	}
	ordered := prioritize(docs, "diabetes")
	assert.Equal(t, docs, ordered)
}

func TestPrioritizeDoesNotMutateInput(t *testing.T) {
	docs := []models.RawDocument{
		{Path: "misc/zzz.json"},
		{Path: "guidelines/diabetes.json"},
	}
	prioritize(docs, "diabetes")
	assert.Equal(t, "misc/zzz.json", docs[0].Path)
}
