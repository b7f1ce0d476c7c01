// Package safety implements the SafetyFilter described in spec §4.4: input
// attack detection with a per-user probe tracker, output redaction and
// content-category screening, and log sanitation. It shares one regex
// compendium (patterns.go) across the three layers, following the teacher's
// low-dependency package style (pkg/think, pkg/contextanalyzer) — a scan
// this shallow has no third-party pattern-matching library anywhere in the
// retrieval pack to prefer over stdlib regexp.
package safety

// ThreatLevel classifies how dangerous a flagged input looks.
type ThreatLevel string

const (
	ThreatNone   ThreatLevel = "none"
	ThreatLow    ThreatLevel = "low"
	ThreatMedium ThreatLevel = "medium"
	ThreatHigh   ThreatLevel = "high"
)

// Family names a prompt-injection pattern group (spec §4.4).
type Family string

const (
	FamilyIgnoreInstructions Family = "ignore_instructions"
	FamilyRoleManipulation   Family = "role_manipulation"
	FamilySystemProbing      Family = "system_probing"
	FamilyEncodedEvasion     Family = "encoded_evasion"
)

// RedactedPlaceholder is substituted for every unconditionally-redacted
// output span. Keeping one fixed placeholder makes the output filter
// idempotent: a second pass never finds anything new to redact inside it.
const RedactedPlaceholder = "[REDACTED]"

// RefusalText replaces a response outright when too many distinct
// violations fire in a single pass (spec §4.4, §4.11 step 7).
const RefusalText = "I can't share that. Let me know if there's something else I can help with."
