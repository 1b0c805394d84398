// Package entity pulls structured values out of free-text chat messages: Nepal phone numbers,
// order ids, ratings, quantities, price ceilings and email addresses.
//
// Every extractor is independent of the others and of the conversation state; handlers decide
// which of the extracted values matter for the step they are on.
package entity

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	phonePattern      = regexp.MustCompile(`\b((?:98|97|96|01)\d{8})\b`)
	shortOrderPattern = regexp.MustCompile(`(?i)\b[A-Fa-f0-9]{8}\b`)
	uuidOrderPattern  = regexp.MustCompile(`(?i)[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`)
	ratingPattern     = regexp.MustCompile(`(?i)\b([1-5])\s*(?:star|stars|/5|out of 5)?\b`)
	quantityPattern   = regexp.MustCompile(`(?i)\b(\d+)\s*(?:pieces?|items?|units?|qty|pcs?)?\b`)
	pricePattern      = regexp.MustCompile(`(?i)(?:rs\.?|npr\.?|रु\.?)\s*(\d+[,\d]*)`)
	emailPattern      = regexp.MustCompile(`(?i)[\w.-]+@[\w.-]+\.\w{2,}`)
	wordPattern       = regexp.MustCompile(`\w+`)
)

// Quantity bounds accepted from free text. Values outside are dropped, not clamped.
const (
	MinQuantity = 1
	MaxQuantity = 100
)

// Bundle is the set of entities found in one message. Zero values mean "not found".
type Bundle struct {
	Phones   []string `json:"phones,omitempty"`
	OrderID  string   `json:"order_id,omitempty"`
	Rating   int      `json:"rating,omitempty"`
	Quantity int      `json:"quantity,omitempty"`
	MaxPrice int      `json:"max_price,omitempty"`
	Email    string   `json:"email,omitempty"`
}

// Phone returns the first phone number found, or "".
func (b Bundle) Phone() string {
	if len(b.Phones) == 0 {
		return ""
	}
	return b.Phones[0]
}

// Empty reports whether nothing was extracted.
func (b Bundle) Empty() bool {
	return len(b.Phones) == 0 && b.OrderID == "" && b.Rating == 0 && b.Quantity == 0 && b.MaxPrice == 0 && b.Email == ""
}

// Extract runs every extractor over message.
func Extract(message string) Bundle {
	var b Bundle

	for _, m := range phonePattern.FindAllStringSubmatch(message, -1) {
		b.Phones = append(b.Phones, m[1])
	}

	if m := shortOrderPattern.FindString(message); m != "" {
		b.OrderID = strings.ToUpper(m)
	}
	// A full UUID takes precedence over the short form it contains.
	if m := uuidOrderPattern.FindString(message); m != "" {
		b.OrderID = m
	}

	if m := ratingPattern.FindStringSubmatch(message); m != nil {
		if r, err := strconv.Atoi(m[1]); err == nil && r >= 1 && r <= 5 {
			b.Rating = r
		}
	}

	if m := quantityPattern.FindStringSubmatch(message); m != nil {
		if q, err := strconv.Atoi(m[1]); err == nil && q >= MinQuantity && q <= MaxQuantity {
			b.Quantity = q
		}
	}

	if m := pricePattern.FindStringSubmatch(message); m != nil {
		if p, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			b.MaxPrice = p
		}
	}

	b.Email = emailPattern.FindString(message)
	return b
}

// Phone returns the first Nepal phone number in message.
func Phone(message string) string {
	if m := phonePattern.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return ""
}

// Email returns the first email address in message.
func Email(message string) string {
	return emailPattern.FindString(message)
}

var ratingWords = []struct {
	word  string
	value int
}{
	{"one", 1}, {"two", 2}, {"three", 3}, {"four", 4}, {"five", 5},
}

var quantityWords = []struct {
	word  string
	value int
}{
	{"one", 1}, {"two", 2}, {"three", 3}, {"four", 4}, {"five", 5},
	{"six", 6}, {"seven", 7}, {"eight", 8}, {"nine", 9}, {"ten", 10},
}

func hasWord(message, word string) bool {
	for _, w := range wordPattern.FindAllString(strings.ToLower(message), -1) {
		if w == word {
			return true
		}
	}
	return false
}

// Rating returns a 1-5 rating from digits ("4 stars") or number words ("four"), or 0.
func Rating(message string) int {
	if m := ratingPattern.FindStringSubmatch(message); m != nil {
		if r, err := strconv.Atoi(m[1]); err == nil && r >= 1 && r <= 5 {
			return r
		}
	}
	for _, rw := range ratingWords {
		if hasWord(message, rw.word) {
			return rw.value
		}
	}
	return 0
}

// Quantity returns a quantity from digits ("3 pcs") or number words up to ten, or 0.
func Quantity(message string) int {
	if m := quantityPattern.FindStringSubmatch(message); m != nil {
		if q, err := strconv.Atoi(m[1]); err == nil && q >= MinQuantity && q <= MaxQuantity {
			return q
		}
	}
	for _, qw := range quantityWords {
		if hasWord(message, qw.word) {
			return qw.value
		}
	}
	return 0
}

var keywordStopWords = map[string]bool{
	"show": true, "me": true, "the": true, "a": true, "an": true, "i": true, "want": true,
	"need": true, "find": true, "search": true, "looking": true, "for": true, "can": true,
	"you": true, "please": true, "what": true, "do": true, "have": true, "products": true,
	"product": true, "all": true, "everything": true, "browse": true, "see": true, "buy": true,
	"get": true, "order": true, "purchase": true, "tell": true, "about": true, "more": true,
	"details": true, "info": true, "is": true, "are": true, "to": true, "and": true, "or": true,
	"with": true, "of": true, "in": true, "on": true, "at": true, "by": true, "from": true,
}

// ProductKeywords returns the words of message likely to name a product: lowercased, stop
// words removed, at least three characters.
func ProductKeywords(message string) []string {
	var out []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(message), -1) {
		if keywordStopWords[w] || len([]rune(w)) <= 2 {
			continue
		}
		out = append(out, w)
	}
	return out
}
