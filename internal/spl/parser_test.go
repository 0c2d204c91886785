package spl

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLabel = `<?xml version="1.0" encoding="UTF-8"?>
<document xmlns="urn:hl7-org:v3">
  <component>
    <section code="34067-9">
      <title>INDICATIONS AND USAGE</title>
      <text>Indicated as an adjunct to diet and exercise to improve glycemic control in adults with type 2 diabetes mellitus.</text>
    </section>
  </component>
  <component>
    <section code="34068-7">
      <title>DOSAGE AND ADMINISTRATION</title>
      <text>The recommended starting dose is 500 mg orally twice a day with meals.</text>
    </section>
  </component>
  <component>
    <section code="43685-7">
      <text>x</text>
    </section>
  </component>
</document>`

func TestParseExtractsConfiguredSections(t *testing.T) {
	sections, err := Parse([]byte(sampleLabel), SectionCodes)
	require.NoError(t, err)

	assert.Contains(t, sections["indications_and_usage"], "glycemic control")
	assert.Contains(t, sections["dosage_and_administration"], "500 mg")

	// The warnings section's text is below the noise threshold.
	_, ok := sections["warnings_and_precautions"]
	assert.False(t, ok)
}

func TestParseTruncatesLongSections(t *testing.T) {
	long := strings.Repeat("adverse reaction data. ", 500)
	doc := `<document><section code="34084-4"><text>` + long + `</text></section></document>`

	sections, err := Parse([]byte(doc), SectionCodes)
	require.NoError(t, err)
	assert.Len(t, sections["adverse_reactions"], maxSectionLen)
}

func TestParseTruncationKeepsValidUTF8(t *testing.T) {
	// A multi-byte rune straddling the section budget: the cut must back up
	// to the rune boundary instead of emitting a partial encoding.
	long := strings.Repeat("a", maxSectionLen-1) + "µ" + strings.Repeat("b", 100)
	doc := `<document><section code="34084-4"><text>` + long + `</text></section></document>`

	sections, err := Parse([]byte(doc), SectionCodes)
	require.NoError(t, err)

	got := sections["adverse_reactions"]
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxSectionLen-1)
}

func TestParseFallbackTruncationKeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("a", maxFallbackLen-1) + "—" + strings.Repeat("b", 100)
	doc := `<document><body>` + long + `</body></document>`

	sections, err := Parse([]byte(doc), SectionCodes)
	require.NoError(t, err)

	got := sections["full_text"]
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxFallbackLen-1)
}

func TestParseFallsBackToFullText(t *testing.T) {
	doc := `<document><body><p>` +
		strings.Repeat("This label uses no recognized section codes at all. ", 200) +
		`</p></body></document>`

	sections, err := Parse([]byte(doc), SectionCodes)
	require.NoError(t, err)

	require.Len(t, sections, 1)
	full, ok := sections["full_text"]
	require.True(t, ok)
	assert.LessOrEqual(t, len(full), maxFallbackLen)
	assert.Contains(t, full, "no recognized section codes")
}

func TestParseMalformedMarkup(t *testing.T) {
	_, err := Parse([]byte(`<document><section code="34067-9">unclosed`), SectionCodes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
}

func TestParseEmptyDocument(t *testing.T) {
	sections, err := Parse([]byte(`<document></document>`), SectionCodes)
	require.NoError(t, err)
	assert.Empty(t, sections)
}

func TestSearchTextPriorityOrder(t *testing.T) {
	sections := map[string]string{
		"clinical_pharmacology":      "pharmacology text",
		"indications_and_usage":      "indications text",
		"dosage_and_administration":  "dosing text",
		"spl_patient_package_insert": "insert text",
	}

	text := SearchText(sections)

	indications := strings.Index(text, "Indications And Usage:")
	dosing := strings.Index(text, "Dosage And Administration:")
	pharmacology := strings.Index(text, "Clinical Pharmacology:")
	insert := strings.Index(text, "Spl Patient Package Insert:")

	require.NotEqual(t, -1, indications)
	require.NotEqual(t, -1, dosing)
	require.NotEqual(t, -1, pharmacology)
	require.NotEqual(t, -1, insert)

	assert.Less(t, indications, dosing)
	assert.Less(t, dosing, pharmacology)
	// Non-priority sections trail the priority block.
	assert.Less(t, pharmacology, insert)
}

func TestSearchTextFallbackOmitsSectionTitles(t *testing.T) {
	sections := map[string]string{"full_text": "whole document text"}
	text := SearchText(sections)

	assert.NotContains(t, text, "Indications")
	assert.Contains(t, text, "whole document text")
}

func TestSearchTextEmpty(t *testing.T) {
	assert.Equal(t, "", SearchText(nil))
}
