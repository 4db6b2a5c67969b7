package narration

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxPromptRunes caps the prompt sent to the synthesis backend.
const MaxPromptRunes = 3000

// promptPrefix frames the text for the backend as an Uzbek narrator.
const promptPrefix = "O'zbek tili ona tilida gapiradigan suxandon sifatida o'qing. \n" +
	"Matnni o'zbekcha talaffuz bilan, tabiiy ohang va to'g'ri urg'u bilan ayting. \n" +
	"Inglizcha yoki texnik atamalarni ham o'zbekcha talaffuzga moslab o'qing: "

type replacement struct {
	re   *regexp.Regexp
	with string
}

var (
	digitRun = regexp.MustCompile(`([0-9]+)`)

	// Applied in order, case-insensitively, on whole words only.
	pronunciations = []replacement{
		{regexp.MustCompile(`(?i)\bAI\b`), "ay ay"},
		{regexp.MustCompile(`(?i)\bTTS\b`), "ti ti es"},
		{regexp.MustCompile(`(?i)\bE-?Imkon\b`), "e imkon"},
		{regexp.MustCompile(`(?i)\bTutor\b`), "tyutor"},
		{regexp.MustCompile(`(?i)\bFrontend\b`), "fron tend"},
		{regexp.MustCompile(`(?i)\bHTML\b`), "eych ti em el"},
		{regexp.MustCompile(`(?i)\bCSS\b`), "si es es"},
		{regexp.MustCompile(`(?i)\bReact\b`), "riakt"},
	}
)

// Normalize rewrites text for Uzbek pronunciation: digit runs are padded with
// spaces so they are read on their own, and known abbreviations and brand
// names are replaced by phonetic spellings.
func Normalize(text string) string {
	text = digitRun.ReplaceAllString(text, " ${1} ")
	for _, r := range pronunciations {
		text = r.re.ReplaceAllLiteralString(text, r.with)
	}
	return text
}

// Prompt returns the full synthesis prompt for text, truncated to
// [MaxPromptRunes] runes.
func Prompt(text string) string {
	p := promptPrefix + Normalize(text)
	if utf8.RuneCountInString(p) <= MaxPromptRunes {
		return p
	}
	var b strings.Builder
	n := 0
	for _, r := range p {
		if n == MaxPromptRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
