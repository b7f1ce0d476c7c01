package safety

import "regexp"

// injectionPattern is one compiled regex belonging to a named family.
type injectionPattern struct {
	family  Family
	pattern *regexp.Regexp
}

// injectionPatterns is the prompt-injection compendium scanned by
// CheckInput. Grouped by family per spec §4.4; the grouping (not any
// individual pattern) drives threat classification.
var injectionPatterns = []injectionPattern{
	{FamilyIgnoreInstructions, regexp.MustCompile(`(?i)ignore\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`)},
	{FamilyIgnoreInstructions, regexp.MustCompile(`(?i)disregard\s+(all\s+|any\s+)?(previous|prior|above)\s+(instructions?|rules?)`)},
	{FamilyIgnoreInstructions, regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you\s+(were\s+told|know)|above)`)},
	{FamilyIgnoreInstructions, regexp.MustCompile(`(?i)override\s+your\s+(system\s+)?(prompt|instructions?)`)},

	{FamilyRoleManipulation, regexp.MustCompile(`(?i)\byou\s+are\s+now\b`)},
	{FamilyRoleManipulation, regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+(are|were)|an?)\b`)},
	{FamilyRoleManipulation, regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are|that\s+you)\b`)},
	{FamilyRoleManipulation, regexp.MustCompile(`(?i)\b(DAN|do\s+anything\s+now)\s+mode\b`)},
	{FamilyRoleManipulation, regexp.MustCompile(`(?i)jailbreak`)},
	{FamilyRoleManipulation, regexp.MustCompile(`(?i)enter\s+developer\s+mode`)},

	{FamilySystemProbing, regexp.MustCompile(`(?i)(reveal|show|print|output|repeat|leak)\s+(me\s+)?your\s+(system\s+)?(prompt|instructions?)`)},
	{FamilySystemProbing, regexp.MustCompile(`(?i)what\s+(are|were)\s+your\s+(initial\s+|original\s+|system\s+)?instructions`)},
	{FamilySystemProbing, regexp.MustCompile(`(?i)repeat\s+(the\s+)?(words|text|everything)\s+above`)},
	{FamilySystemProbing, regexp.MustCompile(`(?i)what\s+model\s+(are\s+you|is\s+this)`)},

	{FamilyEncodedEvasion, regexp.MustCompile(`(?i)\bbase64\b.{0,30}(decode|encoded)`)},
	{FamilyEncodedEvasion, regexp.MustCompile(`(?i)\brot13\b`)},
	{FamilyEncodedEvasion, regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`)}, // long base64-looking blob
	{FamilyEncodedEvasion, regexp.MustCompile(`(?i)decode\s+(this|the\s+following)\s+(and\s+)?(execute|follow|run)`)},
}

// educationalFraming suppresses a match that co-occurs with explicit
// teaching/research context, per spec §4.4.
var educationalFraming = regexp.MustCompile(`(?i)\b(how\s+to|explain|for\s+(a\s+)?(class|course|paper|research)|teach\s+me|i'?m\s+(studying|learning))\b.{0,40}\b(ignore|bypass|jailbreak|prompt\s+inject)`)

// highSeverityCategories reject unconditionally, regardless of framing.
var highSeverityCategories = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"weapon construction", regexp.MustCompile(`(?i)how\s+to\s+(build|make|assemble)\s+a\s+(pipe\s+)?(bomb|explosive|detonator)`)},
	{"self-harm method", regexp.MustCompile(`(?i)(how\s+to|best\s+way\s+to)\s+(kill\s+myself|commit\s+suicide|end\s+my\s+life)`)},
	{"sexual content involving minors", regexp.MustCompile(`(?i)\b(child|minor|underage)\b.{0,25}\b(sex|sexual|explicit)\b`)},
	{"hacking how-to", regexp.MustCompile(`(?i)how\s+to\s+hack\s+into\s+(a|an|the|someone'?s)?\s*(account|server|network|computer|phone)`)},
	{"explicit hate-violence incitement", regexp.MustCompile(`(?i)(kill|exterminate|lynch)\s+all\s+\w+\s+(people|immigrants|jews|muslims|gays)`)},
}

// Output-filter unconditional redaction patterns (spec §4.4 output filter).
var (
	infraURLPattern    = regexp.MustCompile(`(?i)\bhttps?://(localhost|127\.0\.0\.1|0\.0\.0\.0|(?:\d{1,3}\.){3}\d{1,3}|[\w.-]+)(:\d{2,5})(/[^\s]*)?\b`)
	envVarPattern      = regexp.MustCompile(`\b[A-Z][A-Z0-9_]{2,}(?:_KEY|_TOKEN|_SECRET|_PASSWORD)\b\s*=\s*\S+`)
	absPathPattern     = regexp.MustCompile(`(?:^|[\s"'` + "`" + `])(/(?:[\w.-]+/){2,}[\w.-]+)`)
	dotenvPattern      = regexp.MustCompile(`\.env\b`)
	apiKeyPattern      = regexp.MustCompile(`\b(sk-[A-Za-z0-9]{20,}|AKIA[0-9A-Z]{16}|AIza[0-9A-Za-z_\-]{30,})\b`)
	jwtPattern         = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)
	ssnPattern         = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	creditCardPattern  = regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)
)

// selfReferentialMarkers bound the 80-character lookahead window within
// which an internal name is considered self-referential and redacted.
var selfReferentialMarkers = regexp.MustCompile(`(?i)\b(i\s+am|i'm|i\s+use|i'?m\s+running\s+on|powered\s+by|built\s+with|based\s+on)\b`)

// modelTagPattern matches model-identifier-shaped tokens such as
// "llama3.1:8b" or "gpt-4-turbo" — only applied inside the self-referential
// window, never scanned across the whole response.
var modelTagPattern = regexp.MustCompile(`(?i)\b[a-z]+[0-9][a-z0-9]*(?:\.[0-9]+)?(?::[a-z0-9]+)?\b`)

var knownFrameworkNames = regexp.MustCompile(`(?i)\b(nanobot|picoclaw|rotbot|ollama|vllm|llama\.cpp|openai|anthropic|claude|gpt-[0-9])\b`)

// Log sanitation patterns (spec §4.4 logging sanitation).
var (
	emailPattern      = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	phonePattern      = regexp.MustCompile(`\+?\d[\d\-\s()]{7,}\d`)
	highEntropyToken  = regexp.MustCompile(`\b[A-Za-z0-9_-]{24,}\b`)
)

// codeSpanPattern matches fenced (```...```) and inline (`...`) code spans
// so output-filter scans can skip over them.
var codeSpanPattern = regexp.MustCompile("(?s)```.*?```|`[^`\n]*`")
