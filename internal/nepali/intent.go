package nepali

import "strings"

type intentPhrases struct {
	intent  string
	phrases []string
}

// intentTable is ordered; the first intent to reach the best score wins.
var intentTable = []intentPhrases{
	{"greeting", []string{"namaste", "namaskar", "k cha", "kasto cha", "hello", "hi", "hajur"}},
	{"order_tracking", []string{
		"mero order", "order kata", "kata pugyo", "track garnu", "order kaha cha",
		"delivery kaha", "aayo ki aena", "kahile auncha", "order status",
	}},
	{"order_placement", []string{
		"kinnu cha", "kinna cha", "linu cha", "chahinchha", "order garnu", "yo dinus",
		"yo linchu", "mangauchu", "buy garnu", "add to cart",
	}},
	{"product_search", []string{
		"dekhau", "k cha", "product haru", "saman dekhau", "k k cha", "show garnus",
		"products", "yo cha", "browse",
	}},
	{"flash_sale", []string{"offer", "sale", "discount", "sasto", "deal", "flash sale", "special offer"}},
	{"support", []string{
		"samasya", "problem", "help", "dikkat", "thik chaina", "return", "refund", "complaint", "garo cha",
	}},
	{"thanks", []string{"dhanyabad", "dhanyabaad", "thank you", "thanks", "dhanybad"}},
	{"bye", []string{"bye", "goodbye", "pheri bhetaula", "ramro sangha", "see you"}},
	{"policy", []string{
		"delivery kati din", "shipping charge", "return policy", "payment kasari", "cod cha",
		"kati parcha delivery",
	}},
	{"price", []string{"kati parcha", "price", "rate", "cost", "kati ho"}},
}

// DetectIntent maps Nepali phrases in text to an intent name. Each contained phrase adds 0.3
// per word; the highest-scoring intent wins. It returns "" when nothing matched.
func DetectIntent(text string) (string, float64) {
	lower := strings.ToLower(text)
	best := ""
	bestScore := 0.0
	for _, row := range intentTable {
		score := 0.0
		for _, p := range row.phrases {
			if containsPhrase(lower, p) {
				score += float64(len(strings.Fields(p))) * 0.3
			}
		}
		if score > bestScore {
			best, bestScore = row.intent, score
		}
	}
	return best, min(1.0, bestScore)
}

// containsPhrase is a substring test, except that two-letter phrases such as "hi" must be whole
// words.
func containsPhrase(text, phrase string) bool {
	if len(phrase) > 2 {
		return strings.Contains(text, phrase)
	}
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if w == phrase {
			return true
		}
	}
	return false
}
