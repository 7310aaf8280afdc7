package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// PolicyQuery is the immutable natural-language question driving a run,
// e.g. "ban on single-use plastic bags".
type PolicyQuery struct {
	Text string
}

// PolicyType selects the report shape the Orchestrator hands off to the
// external renderer.
type PolicyType string

const (
	PolicyTypeResearch   PolicyType = "research"
	PolicyTypeAnalysis   PolicyType = "analysis"
	PolicyTypeEvolution  PolicyType = "evolution"
	PolicyTypeIntegrated PolicyType = "integrated"
)

// Fingerprint returns a deterministic hash of the normalized query text and
// the jurisdiction context, used to identify repeat runs for idempotence
// tests (spec.md §8 "re-running the engine with identical seed...").
func Fingerprint(q PolicyQuery, jurisdiction JurisdictionContext) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(q.Text), " "))

	// Sort-stable serialization: json.Marshal on a map with string keys
	// already emits keys in sorted order, so this is deterministic.
	jctx, _ := json.Marshal(jurisdiction.Fields)

	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write(jctx)

	return hex.EncodeToString(h.Sum(nil))
}
