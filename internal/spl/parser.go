// Package spl parses Structured Product Label documents: semi-structured
// XML whose sections are tagged with LOINC codes.
package spl

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrParse classifies malformed markup. Callers treat it as "no sections"
// and fall back to unstructured handling rather than aborting.
var ErrParse = errors.New("spl: malformed markup")

const (
	// minSectionLen filters boilerplate: section elements whose text is
	// this short are noise (empty headers, list markers).
	minSectionLen = 20

	// maxSectionLen caps each parsed section's combined text.
	maxSectionLen = 3000

	// maxFallbackLen caps the whole-document fallback extraction.
	maxFallbackLen = 5000
)

// SectionCodes maps LOINC codes to the label sections worth indexing.
var SectionCodes = map[string]string{
	"34067-9": "indications_and_usage",
	"34068-7": "dosage_and_administration",
	"43685-7": "warnings_and_precautions",
	"34084-4": "adverse_reactions",
	"34073-7": "drug_interactions",
	"34090-1": "clinical_pharmacology",
	"34076-0": "information_for_patients",
	"42229-5": "spl_patient_package_insert",
}

// sectionPriority is the assembly order for searchable text; sections not
// listed here follow in name order.
var sectionPriority = []string{
	"indications_and_usage",
	"dosage_and_administration",
	"warnings_and_precautions",
	"adverse_reactions",
	"drug_interactions",
	"clinical_pharmacology",
}

// node is a minimal XML element tree, enough to match code attributes and
// collect descendant text.
type node struct {
	attrs    []xml.Attr
	text     strings.Builder
	children []*node
}

// Parse extracts the configured sections from an SPL document. For each code
// in codes it concatenates the text of all matching elements, skips combined
// text shorter than the noise threshold, and truncates the survivor. When no
// configured section matched anything, the whole document's text is returned
// under a single "full_text" key, capped at the fallback limit.
func Parse(doc []byte, codes map[string]string) (map[string]string, error) {
	root, err := parseTree(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	sections := make(map[string]string)
	for code, name := range codes {
		var parts []string
		collectByCode(root, code, &parts)
		if len(parts) == 0 {
			continue
		}
		sections[name] = truncate(strings.Join(parts, "\n\n"), maxSectionLen)
	}

	if len(sections) == 0 {
		all := strings.TrimSpace(collectText(root))
		if all != "" {
			sections["full_text"] = truncate(all, maxFallbackLen)
		}
	}

	return sections, nil
}

// SearchText assembles a retrieval string from parsed sections: priority
// sections first, the rest in stable name order, each as a titled block.
func SearchText(sections map[string]string) string {
	var parts []string
	seen := make(map[string]bool)

	for _, name := range sectionPriority {
		if content, ok := sections[name]; ok {
			parts = append(parts, titledBlock(name, content))
			seen[name] = true
		}
	}

	var rest []string
	for name := range sections {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		parts = append(parts, titledBlock(name, sections[name]))
	}

	return strings.Join(parts, "\n\n")
}

// truncate cuts s to at most max bytes without splitting a multi-byte rune:
// a cut landing inside one backs up to the rune's start.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func titledBlock(name, content string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ") + ":\n" + content
}

func parseTree(doc []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	root := &node{}
	stack := []*node{root}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{attrs: t.Attr}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			stack[len(stack)-1].text.Write([]byte(t))
		}
	}
	if len(stack) != 1 {
		return nil, errors.New("unbalanced elements")
	}
	return root, nil
}

// collectByCode appends the trimmed descendant text of every element whose
// code attribute matches, skipping matches below the noise threshold.
func collectByCode(n *node, code string, out *[]string) {
	for _, a := range n.attrs {
		if a.Name.Local == "code" && a.Value == code {
			text := strings.TrimSpace(collectText(n))
			if len(text) > minSectionLen {
				*out = append(*out, text)
			}
			return
		}
	}
	for _, c := range n.children {
		collectByCode(c, code, out)
	}
}

func collectText(n *node) string {
	var b strings.Builder
	var walk func(*node)
	walk = func(m *node) {
		b.WriteString(m.text.String())
		for _, c := range m.children {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
