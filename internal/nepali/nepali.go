// Package nepali recognizes Roman Nepali (Nepali typed in Latin script), maps Nepali phrases to
// chat intents, and supplies Nepali-English response templates for local customers.
package nepali

import (
	"regexp"
	"sort"
	"strings"
)

// keywords maps Roman Nepali words and phrases to an English gloss.
var keywords = map[string]string{
	// greetings
	"namaste": "hello", "namaskar": "hello", "namaskarr": "hello",
	"k cha": "how are you", "kasto cha": "how are you", "sanchai": "fine",
	// common words
	"ho": "yes", "hoo": "yes", "hajur": "yes", "hoina": "no", "chaina": "no",
	"chha": "is/have", "cha": "is/have", "thik cha": "okay", "thikai": "okay", "huncha": "okay",
	// questions
	"kati": "how much", "kata": "where", "kasari": "how", "kina": "why", "kun": "which",
	"ke": "what", "kahile": "when", "ko": "who",
	// shopping
	"kinnu": "buy", "kinna": "buy", "kinchu": "will buy", "linu": "take", "linchu": "will take",
	"dinu": "give", "dinus": "please give", "dekhau": "show", "dekhaus": "please show",
	"dekhaidinus": "please show", "chahinchha": "need", "chahiyo": "needed",
	"parcha": "costs/required", "pugcha": "enough",
	// products
	"saman": "product", "bastu": "item", "maal": "goods", "naya": "new", "ramro": "good",
	"mitho": "nice", "sasto": "cheap", "mahango": "expensive",
	// orders
	"order": "order", "manga": "order", "mangaunu": "to order", "track": "track",
	"kata pugyo": "where is it", "aipugyo": "arrived", "aayo": "came", "aaena": "not came",
	"pathau": "send", "pathaunu": "to send",
	// quantity
	"euta": "one", "duita": "two", "tinta": "three", "charta": "four", "panchta": "five",
	"dherai": "many", "ali": "some", "thori": "little",
	// polite words
	"dhanyabad": "thank you", "dhanyabaad": "thank you", "dhanybad": "thank you",
	"maaf": "sorry", "kshama": "sorry", "please": "please", "kripaya": "please",
	// location
	"ghar": "home", "thau": "place", "thauma": "at place", "najik": "near", "tadha": "far",
	// payment
	"paisa": "money", "rupiya": "rupees", "tirnu": "pay", "tirchu": "will pay", "cash": "cash",
	"haat ma": "in hand/cod",
	// problems
	"samasya": "problem", "dikkat": "problem", "garo": "difficult", "thik chaina": "not okay",
	"bigriyo": "broken",
	// bye
	"bye": "bye", "pheri bhetaula": "see you again", "ramro sangha": "take care",
}

// phrases holds the multi-word keys of keywords, longest first.
var phrases = func() []string {
	var out []string
	for k := range keywords {
		if strings.Contains(k, " ") {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

var grammarPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(cha|chha|huncha|bhayo)\b`),
	regexp.MustCompile(`(?i)\b(ko|ma|lai|le|bata)\b`),
	regexp.MustCompile(`(?i)\b(ho|hoina|chaina)\b`),
	regexp.MustCompile(`(?i)\b(garnu|garna|gareko)\b`),
	regexp.MustCompile(`(?i)\b(ta|ni|pani|chai)\b`),
}

var nonWord = regexp.MustCompile(`[^\w]`)

// IsNepaliThreshold is the confidence at which text counts as Nepali.
const IsNepaliThreshold = 0.2

// Detection is the result of Detect.
type Detection struct {
	IsNepali   bool     `json:"is_nepali"`
	Confidence float64  `json:"confidence"`
	Words      []string `json:"detected_words"`
}

// isEvidence reports whether a table hit says anything about the language. Entries whose
// gloss is the word itself ("order", "please") are shared with English.
func isEvidence(word string) bool {
	return keywords[word] != word
}

// Detect scores text for Roman Nepali. Known single words score 2, known phrases 3 (once each)
// and grammar-pattern words 1 when not already counted. Confidence is the score over twice the
// word count, capped at 1.
func Detect(text string) Detection {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	if len(words) == 0 {
		return Detection{Words: []string{}}
	}

	var detected []string
	seen := make(map[string]bool)
	score := 0

	for _, w := range words {
		clean := nonWord.ReplaceAllString(w, "")
		if _, ok := keywords[clean]; ok && isEvidence(clean) {
			detected = append(detected, clean)
			seen[clean] = true
			score += 2
		}
	}
	for _, p := range phrases {
		if strings.Contains(lower, p) && !seen[p] {
			detected = append(detected, p)
			seen[p] = true
			score += 3
		}
	}
	for _, pat := range grammarPatterns {
		for _, m := range pat.FindAllStringSubmatch(lower, -1) {
			if !seen[m[1]] {
				detected = append(detected, m[1])
				seen[m[1]] = true
				score++
			}
		}
	}

	conf := min(1.0, float64(score)/float64(len(words)*2))
	distinct := len(seen)
	if detected == nil {
		detected = []string{}
	}
	return Detection{
		IsNepali:   conf >= IsNepaliThreshold || distinct >= 2,
		Confidence: conf,
		Words:      detected,
	}
}

// Translate replaces detected Nepali words in text with their English glosses. Phrases are
// replaced before single words.
func Translate(text string) string {
	d := Detect(text)
	out := strings.ToLower(text)
	ordered := append([]string(nil), d.Words...)
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })
	for _, w := range ordered {
		if gloss, ok := keywords[w]; ok {
			out = replaceWord(out, w, gloss)
		}
	}
	return out
}

func replaceWord(s, word, repl string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.ReplaceAllLiteralString(s, repl)
}

// Gloss returns the English meaning of a Roman Nepali word or phrase.
func Gloss(word string) (string, bool) {
	g, ok := keywords[strings.ToLower(word)]
	return g, ok
}
