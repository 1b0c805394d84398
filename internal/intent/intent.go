// Package intent classifies a chat message into one of a closed set of intents using keyword
// tables with typo-tolerant phrase matching.
//
// Detect is a pure function: it carries no state between calls, and the same message and
// history always produce the same result.
package intent

import (
	"regexp"
	"sort"
	"strings"

	"github.com/BTreeMap/ovnchat/internal/textsim"
)

// Intent is a classified purpose of a user message.
type Intent string

const (
	OrderTracking  Intent = "order_tracking"
	OrderPlacement Intent = "order_placement"
	Support        Intent = "support"
	ReviewView     Intent = "review_view"
	ReviewSubmit   Intent = "review_submit"
	FlashSale      Intent = "flash_sale"
	ProductSearch  Intent = "product_search"
	Categories     Intent = "categories"
	Greeting       Intent = "greeting"
	Policy         Intent = "policy"
	Thanks         Intent = "thanks"
	Bye            Intent = "bye"
	General        Intent = "general"
)

// ProductDetail is produced by the orchestrator, never by Detect, when a follow-up refers to a
// product just shown.
const ProductDetail Intent = "product_detail"

// Fuzzy thresholds.
const (
	fuzzyAccept      = 0.85
	fuzzyCompactMin  = 0.85
	fuzzyWindowMin   = 0.8
	fuzzyWordSeqMin  = 0.75
	fuzzyMinKeyLen   = 4
	shortKeywordRune = 3
)

type rule struct {
	intent   Intent
	keywords []string
}

// rules is ordered: on a full tie the earlier intent wins.
var rules = []rule{
	{OrderTracking, []string{
		"track order", "track my order", "where is my order", "order status",
		"check order", "check my order", "find order", "find my order",
		"order location", "delivery status", "order update", "order kaha",
		"mero order", "where order", "status of order", "order check",
		"track delivery", "track product delivery", "where is order",
		"order kati pugyo", "order aayo", "delivery kaha pugyo",
	}},
	{OrderPlacement, []string{
		"buy", "purchase", "want to buy", "add to cart",
		"get this", "ill take", "i'll take", "place order", "order this",
		"buy this", "purchase this", "i will buy", "want this",
		"want to order", "i want to order", "like to order", "like to buy",
		"order now", "buy now", "kinchu", "kinna", "kinnu", "yo kinna",
		"checkout", "proceed to buy",
	}},
	{Support, []string{
		"return my order", "return order", "return this", "return item",
		"refund my order", "refund order", "get refund", "money back",
		"refund please", "need refund", "want refund", "refund request",
		"complaint", "problem", "issue", "help me", "need help",
		"contact support", "speak to human", "talk to human", "human agent",
		"not working", "damaged", "wrong item", "defective", "broken",
		"cancel order", "cancel my order", "exchange", "replace",
		"not received", "missing item", "wrong product",
	}},
	{ReviewView, []string{
		"reviews for", "show reviews", "see reviews", "view reviews",
		"ratings for", "what do people say", "product reviews", "customer reviews",
		"read reviews", "check reviews", "any reviews", "reviews of",
	}},
	{ReviewSubmit, []string{
		"write review", "write a review", "leave review", "leave a review",
		"submit review", "submit a review", "rate product", "rate a product",
		"i want to review", "give feedback", "rate this", "add review",
		"post review", "my review", "give review", "review this product",
	}},
	{FlashSale, []string{
		"flash sale", "deals", "offers", "on sale", "special offers",
		"discounted products", "discounted items", "discount products",
		"what is on discount", "sale items", "featured products",
		"best deals", "hot deals", "today deals", "offer products",
	}},
	{ProductSearch, []string{
		"show products", "show all products", "browse products", "all products",
		"find products", "search products", "looking for", "what do you have",
		"show me products", "display products", "available products",
		"list products", "product list", "ke cha", "k k cha",
		"details about", "info about", "tell me about", "know about",
		"information about", "show me the", "want to know about", "want to see",
	}},
	{Categories, []string{
		"categories", "category", "types", "kinds", "show categories",
		"product types", "what categories", "all categories",
	}},
	{Greeting, []string{
		"hi", "hello", "hey", "good morning", "good evening", "good afternoon",
		"howdy", "greetings", "namaste", "namaskar", "hii", "helo",
		"bro", "yo", "sup", "wassup", "man", "dude", "whats up", "what's up",
		"hola", "oi", "heyy", "heya", "hiya",
	}},
	{Policy, []string{
		"shipping", "delivery time", "return policy", "refund policy", "how long",
		"payment method", "cod", "cash on delivery", "delivery charge",
		"shipping charge", "free delivery", "delivery days",
	}},
	{Thanks, []string{
		"thank", "thanks", "thank you", "appreciated", "dhanyabad", "धन्यवाद",
	}},
	{Bye, []string{
		"bye", "goodbye", "see you", "later", "exit", "quit", "close",
	}},
}

var flowIntents = map[Intent]bool{
	OrderTracking: true, OrderPlacement: true, Support: true, ReviewView: true, ReviewSubmit: true,
}

// All returns every intent Detect can produce, in rule order, followed by General.
func All() []Intent {
	out := make([]Intent, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, r.intent)
	}
	return append(out, General)
}

// Keywords returns a copy of the keyword list for in.
func Keywords(in Intent) []string {
	for _, r := range rules {
		if r.intent == in {
			return append([]string(nil), r.keywords...)
		}
	}
	return nil
}

// Turn is the part of a conversation entry the detector looks at.
type Turn struct {
	Role    string
	Content string
}

// Result is the outcome of Detect.
type Result struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Matched    []string `json:"matched_keywords"`
	Exact      bool     `json:"exact"`
}

type candidate struct {
	intent     Intent
	order      int
	confidence float64
	matches    []string
	exact      bool
	longest    int
}

// Detect classifies message, optionally boosted by recent conversation turns.
//
// For each intent, keywords found verbatim in the message are exact matches; multi-word
// keywords are otherwise tried fuzzily. Ranking: any exact candidate beats every fuzzy one,
// then higher confidence, then longer longest match, then rule order.
func Detect(message string, history []Turn) Result {
	lower := strings.ToLower(strings.TrimSpace(message))
	cleaned := strings.Join(strings.Fields(lower), " ")

	var cands []candidate
	for order, r := range rules {
		var exact, fuzzy []string
		for _, kw := range r.keywords {
			if containsKeyword(lower, kw) {
				exact = append(exact, kw)
			} else if len([]rune(kw)) > fuzzyMinKeyLen && strings.Contains(kw, " ") {
				if fuzzyScore(kw, cleaned) >= fuzzyAccept {
					fuzzy = append(fuzzy, kw)
				}
			}
		}
		switch {
		case len(exact) > 0:
			conf := min(1.0, confidence(exact, lower, r.intent)+0.2)
			cands = append(cands, candidate{r.intent, order, conf, exact, true, longest(exact)})
		case len(fuzzy) > 0:
			cands = append(cands, candidate{r.intent, order, confidence(fuzzy, lower, r.intent), fuzzy, false, longest(fuzzy)})
		}
	}

	if len(cands) == 0 {
		return Result{Intent: General, Confidence: 0, Matched: []string{}}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.exact != b.exact {
			return a.exact
		}
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.longest != b.longest {
			return a.longest > b.longest
		}
		return a.order < b.order
	})
	best := cands[0]
	conf := min(1.0, best.confidence+contextBoost(best.intent, history))
	return Result{Intent: best.intent, Confidence: conf, Matched: best.matches, Exact: best.exact}
}

// containsKeyword reports a verbatim match. Short keywords ("hi", "yo", "cod") must stand
// alone as words so that "this" does not greet and "code" is not a payment question.
func containsKeyword(message, kw string) bool {
	if len([]rune(kw)) > shortKeywordRune {
		return strings.Contains(message, kw)
	}
	start := 0
	for {
		idx := strings.Index(message[start:], kw)
		if idx < 0 {
			return false
		}
		i := start + idx
		j := i + len(kw)
		if isBoundary(message, i-1) && isBoundary(message, j) {
			return true
		}
		start = i + 1
		if start >= len(message) {
			return false
		}
	}
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c >= 0x80)
}

func longest(matches []string) int {
	n := 0
	for _, m := range matches {
		if l := len([]rune(m)); l > n {
			n = l
		}
	}
	return n
}

func confidence(matches []string, message string, in Intent) float64 {
	base := min(0.5, float64(len(matches))*0.2)

	total := 0
	multiWord := 0.0
	for _, m := range matches {
		total += len([]rune(m))
		switch words := len(strings.Fields(m)); {
		case words >= 3:
			multiWord += 0.25
		case words == 2:
			multiWord += 0.15
		}
	}
	msgLen := max(len([]rune(message)), 1)
	specificity := min(0.3, float64(total)/float64(msgLen)*0.5)

	bonus := 0.0
	if flowIntents[in] {
		bonus = 0.1
	}
	if in == Greeting {
		bonus += 0.35
	}
	for _, m := range matches {
		if len([]rune(m)) > 10 && strings.Contains(message, m) {
			bonus += 0.15
			break
		}
	}
	return min(1.0, base+specificity+bonus+multiWord)
}

// fuzzyScore returns the first window similarity that clears its family threshold, trying
// space-stripped windows, then character windows, then word windows. 0 means no window did.
func fuzzyScore(keyword, message string) float64 {
	kw := []rune(keyword)
	msg := []rune(message)

	kwCompact := []rune(strings.ReplaceAll(keyword, " ", ""))
	msgCompact := []rune(strings.ReplaceAll(message, " ", ""))
	if len(msgCompact) >= len(kwCompact) {
		for i := 0; i+len(kwCompact) <= len(msgCompact); i++ {
			chunk := string(msgCompact[i : i+len(kwCompact)])
			if r := textsim.Ratio(string(kwCompact), chunk); r >= fuzzyCompactMin {
				return r
			}
		}
	}

	for i := 0; i+len(kw) <= len(msg); i++ {
		if r := textsim.Ratio(keyword, string(msg[i:i+len(kw)])); r >= fuzzyWindowMin {
			return r
		}
	}

	kwWords := strings.Fields(keyword)
	words := strings.Fields(message)
	if len(kwWords) > 1 {
		for i := 0; i+len(kwWords) <= len(words); i++ {
			phrase := strings.Join(words[i:i+len(kwWords)], " ")
			if r := textsim.Ratio(keyword, phrase); r >= fuzzyWordSeqMin {
				return r
			}
		}
	}
	return 0
}

func contextBoost(in Intent, history []Turn) float64 {
	if len(history) == 0 {
		return 0
	}
	recent := history
	if len(recent) > 2 {
		recent = recent[len(recent)-2:]
	}
	for _, t := range recent {
		c := strings.ToLower(t.Content)
		if strings.Contains(c, "product") || strings.Contains(c, "found") {
			switch in {
			case OrderPlacement:
				return 0.15
			case ReviewView:
				return 0.1
			}
		}
	}
	return 0
}

var productIndicators = []string{
	"product", "show", "find", "search", "looking for",
	"buy", "price", "cost", "how much", "available",
}

// IsProductQuery reports whether message asks about products at all.
func IsProductQuery(message string) bool {
	lower := strings.ToLower(message)
	for _, ind := range productIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

var productPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+\s*(ml|l|g|kg|oz|cm|mm|inch)\b`),
	regexp.MustCompile(`\d+\s*(pcs|pieces|pack)\b`),
	regexp.MustCompile(`\d+[a-zA-Z]+`),
	regexp.MustCompile(`\b(jar|cup|bottle|brush|lamp|toothbrush|bag|phone|stand|clover|stanley|vacuum)\b`),
}

// LooksLikeProduct reports whether message reads like a product name or size ("220ml",
// "vacuum cup") even though no intent keyword matched.
func LooksLikeProduct(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range productPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}
