// Package locale holds the fixed language, mode and quick-action tables the
// conversation core reads from.
package locale

import (
	"strings"

	"pocusai/internal/models"
)

const AppName = "POCUS AI"

// Language maps a code to its display name and the label the model expects.
type Language struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	ModelID string `json:"model_label"`
}

// QuickAction is a canned query offered as a one-click conversation starter.
type QuickAction struct {
	Label string `json:"label"`
	Query string `json:"query"`
}

// Languages is ordered; the first entry is the fallback for the model label.
var Languages = []Language{
	{Code: "ko", Name: "한국어 (Korean)", ModelID: "Professional Korean"},
	{Code: "en", Name: "English", ModelID: "Professional English"},
	{Code: "ja", Name: "日本語 (Japanese)", ModelID: "Professional Japanese"},
	{Code: "zh", Name: "简体中文 (Chinese)", ModelID: "Professional Chinese Simplified"},
	{Code: "es", Name: "Español (Spanish)", ModelID: "Professional Spanish"},
	{Code: "fr", Name: "Français (French)", ModelID: "Professional French"},
	{Code: "de", Name: "Deutsch (German)", ModelID: "Professional German"},
	{Code: "vi", Name: "Tiếng Việt (Vietnamese)", ModelID: "Professional Vietnamese"},
	{Code: "th", Name: "ภาษาไทย (Thai)", ModelID: "Professional Thai"},
	{Code: "id", Name: "Bahasa Indonesia (Indonesian)", ModelID: "Professional Indonesian"},
}

// LookupLanguage resolves code, falling back to the first table entry.
func LookupLanguage(code string) Language {
	for _, l := range Languages {
		if l.Code == code {
			return l
		}
	}
	return Languages[0]
}

// Supported reports whether code is in the language table.
func Supported(code string) bool {
	for _, l := range Languages {
		if l.Code == code {
			return true
		}
	}
	return false
}

// UncategorizedTopic is the usage bucket for turns that match no quick action.
const UncategorizedTopic = "General Query"

// DualLayerDirective is appended to every image-bearing user turn.
const DualLayerDirective = "\n\n[SYSTEM REQUEST]: Analyze this image using the 'Hybrid Intelligence Mode'. " +
	"Perform the Dual-Layer Analysis (Clinical Interpretation vs. AI Morphological Feature Extraction)."

// InstructionTemplate is filled with {MODE}, {MODE_LOWER} and {LANGUAGE}.
const InstructionTemplate = `
### ROLE
Expert {MODE} Clinical Ultrasound Consultant.

### RESPONSE STRUCTURE
1. 🏥 CLINICAL FINDINGS (Clinical sonographic signs)
2. 🎯 SUSPECTED DIAGNOSIS (Most likely differential)
3. 🔎 DETAILED ANALYSIS (Dual-layer AI/Clinical reasoning)

Language: {LANGUAGE}.
Note: Always include relevant medical terms in English.
`

// Instruction renders the system instruction for mode and language code.
func Instruction(mode models.Mode, languageCode string) string {
	return strings.NewReplacer(
		"{MODE_LOWER}", ModeKey(mode),
		"{MODE}", ModeLabel(mode),
		"{LANGUAGE}", LookupLanguage(languageCode).ModelID,
	).Replace(InstructionTemplate)
}

// ModeLabel is the capitalised mode name used in the instruction.
func ModeLabel(mode models.Mode) string {
	if mode == models.ModeAdult {
		return "Adult"
	}
	return "Pediatric"
}

// ModeKey is the lower-case mode name.
func ModeKey(mode models.Mode) string {
	if mode == models.ModeAdult {
		return "adult"
	}
	return "pediatric"
}

// TitlePrefix tags saved session titles with their mode.
func TitlePrefix(mode models.Mode) string {
	if mode == models.ModeAdult {
		return "[Adult] "
	}
	return "[Ped] "
}
