package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/careatlas/evidence/internal/models"
)

// knownOrgs are the issuing-organization tokens recognized in object paths,
// checked in order.
var knownOrgs = []string{"ICMR", "MOHFW", "WHO", "ADA", "RSSDI"}

var yearPattern = regexp.MustCompile(`(20\d{2})`)

// extractMeta derives document metadata from the object path: organization
// token, a four-digit year, and a canonical title from the filename.
func extractMeta(objectPath, publicURL string) models.DocumentMeta {
	filename := path.Base(objectPath)

	meta := models.DocumentMeta{
		Organization: "Unknown",
		Year:         "Unknown",
		Title:        strings.TrimSuffix(strings.TrimSuffix(filename, ".json"), ".pdf"),
		SourceURL:    publicURL,
	}

	upper := strings.ToUpper(objectPath)
	for _, org := range knownOrgs {
		if strings.Contains(upper, org) {
			meta.Organization = org
			break
		}
	}

	if m := yearPattern.FindString(filename); m != "" {
		meta.Year = m
	}

	return meta
}

// chunkID derives the stable chunk identifier for a (document path,
// position) pair. A content-addressed digest keeps re-ingestion idempotent
// across processes, unlike a runtime hash.
func chunkID(objectPath string, position int) string {
	sum := sha256.Sum256([]byte(objectPath))
	return fmt.Sprintf("%s_%d", hex.EncodeToString(sum[:8]), position)
}
