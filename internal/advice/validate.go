package advice

import "strings"

// Validation failure reasons, fed back to the model during repair.
const (
	ReasonSchemaInvalid    = "schema_invalid"
	ReasonKana             = "contains_japanese_kana"
	ReasonMissingCitations = "missing_citations"
	ReasonStrikethrough    = "contains_strikethrough"
)

// strikethroughMarker renders as struck-out text in markdown viewers and has
// shown up in broken outputs, so it is banned outright.
const strikethroughMarker = "~~"

// containsKana reports whether s contains hiragana or katakana. Korean
// reports sometimes come back with Japanese particles mixed in when the
// model slips scripts.
func containsKana(s string) bool {
	for _, r := range s {
		if r >= 0x3040 && r <= 0x30FF {
			return true
		}
	}
	return false
}

// Validate checks an output against the contract. It returns an empty string
// when the output is acceptable, otherwise the failure reason.
func Validate(out *Output) string {
	if out == nil || out.Version != Version || out.Title == "" || out.Markdown == "" {
		return ReasonSchemaInvalid
	}
	if containsKana(out.Markdown) {
		return ReasonKana
	}
	if len(out.Citations) == 0 {
		return ReasonMissingCitations
	}
	for _, c := range out.Citations {
		if c.Source == "" {
			return ReasonSchemaInvalid
		}
	}
	if strings.Contains(out.Markdown, strikethroughMarker) {
		return ReasonStrikethrough
	}
	return ""
}
