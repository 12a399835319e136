package services

import (
	"strings"

	"github.com/finsight-hq/finsight-engine/pkg/metadata"
	"github.com/finsight-hq/finsight-engine/pkg/models"
)

// ResolveConsolidation maps a consolidation phrase to its warehouse id.
// Empty and unknown phrases default to unconsolidated, which is how the
// warehouse records standalone filings. The snapshot supplies the id when
// it knows the name; the fixed warehouse ids are the fallback.
func ResolveConsolidation(snap *metadata.Snapshot, phrase string) int {
	p := normalizeText(phrase)

	name := "Unconsolidated"
	switch {
	case p == "":
	case strings.Contains(p, "unconsolidated"), strings.Contains(p, "standalone"), strings.Contains(p, "separate"):
	case strings.Contains(p, "consolidated"), strings.Contains(p, "group"):
		name = "Consolidated"
	}

	if snap != nil {
		if c, ok := snap.ConsolidationByName(name); ok {
			return c.ConsolidationID
		}
	}
	if name == "Consolidated" {
		return models.ConsolidationConsolidated
	}
	return models.ConsolidationUnconsolidated
}
