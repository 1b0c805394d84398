package intent

import (
	"math"
	"reflect"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		msg   string
		want  Intent
		exact bool
	}{
		{"hi", Greeting, true},
		{"hello there", Greeting, true},
		{"track my order", OrderTracking, true},
		{"I want to buy vacuum cup", OrderPlacement, true},
		{"write a review", ReviewSubmit, true},
		{"show categories", Categories, true},
		{"what is the delivery time", Policy, true},
		{"thanks a lot", Thanks, true},
		{"bye", Bye, true},
		{"hi can you show products", ProductSearch, true},
		{"I have a problem with my order", Support, true},
		{"asdfgh", General, false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got := Detect(tt.msg, nil)
			if got.Intent != tt.want || got.Exact != tt.exact {
				t.Errorf("Detect(%q) = %s (exact=%v, conf=%.3f, matched=%v), want %s (exact=%v)",
					tt.msg, got.Intent, got.Exact, got.Confidence, got.Matched, tt.want, tt.exact)
			}
		})
	}
}

// Phrases that were misrouted by earlier keyword tables. Each must resolve to exactly one
// documented intent.
func TestDetectAmbiguousPhrases(t *testing.T) {
	tests := map[string]Intent{
		"return my order":          Support,
		"discounted products":      FlashSale,
		"I want to order":          OrderPlacement,
		"track product delivery":   OrderTracking,
		"show reviews for product": ReviewView,
	}
	for msg, want := range tests {
		if got := Detect(msg, nil); got.Intent != want {
			t.Errorf("Detect(%q) = %s, want %s (matched %v)", msg, got.Intent, want, got.Matched)
		}
	}
}

func TestDetectToleratesTypos(t *testing.T) {
	for _, msg := range []string{"chek my ordr", "trak my order pls"} {
		got := Detect(msg, nil)
		if got.Intent != OrderTracking {
			t.Errorf("Detect(%q) = %s, want order_tracking", msg, got.Intent)
		}
		if got.Exact {
			t.Errorf("Detect(%q) should be a fuzzy match", msg)
		}
	}
}

func TestShortKeywordsNeedWordBoundaries(t *testing.T) {
	for _, msg := range []string{"this is nice", "I have a code", "you there", "yes", "1"} {
		if got := Detect(msg, nil); got.Intent != General {
			t.Errorf("Detect(%q) = %s (matched %v), want general", msg, got.Intent, got.Matched)
		}
	}
	if got := Detect("yo", nil); got.Intent != Greeting {
		t.Errorf("Detect(yo) = %s, want greeting", got.Intent)
	}
	if got := Detect("cod", nil); got.Intent != Policy {
		t.Errorf("Detect(cod) = %s, want policy", got.Intent)
	}
}

func TestDetectConfidence(t *testing.T) {
	got := Detect("buy vacuum cup", nil)
	if math.Abs(got.Confidence-0.6071) > 0.001 {
		t.Errorf("confidence = %.4f, want ~0.6071", got.Confidence)
	}

	boosted := Detect("buy vacuum cup", []Turn{{Role: "assistant", Content: "Found 3 products for you"}})
	if math.Abs(boosted.Confidence-0.7571) > 0.001 {
		t.Errorf("boosted confidence = %.4f, want ~0.7571", boosted.Confidence)
	}

	if got := Detect("track my order", nil); got.Confidence != 1.0 {
		t.Errorf("confidence = %v, want capped at 1", got.Confidence)
	}
}

func TestDetectIsPure(t *testing.T) {
	first := Detect("chek my ordr", nil)
	Detect("hello", nil)
	Detect("flash sale", nil)
	again := Detect("chek my ordr", nil)
	if !reflect.DeepEqual(first, again) {
		t.Errorf("Detect results differ across calls: %+v vs %+v", first, again)
	}
}

func TestDetectMatchedKeywordsInRuleOrder(t *testing.T) {
	got := Detect("I want to order", nil)
	want := []string{"want to order", "i want to order"}
	if !reflect.DeepEqual(got.Matched, want) {
		t.Errorf("Matched = %v, want %v", got.Matched, want)
	}
}

func TestAllAndKeywords(t *testing.T) {
	all := All()
	if len(all) != 13 || all[len(all)-1] != General {
		t.Fatalf("All() = %v", all)
	}
	kws := Keywords(Greeting)
	kws[0] = "mutated"
	if Keywords(Greeting)[0] != "hi" {
		t.Error("Keywords must return a copy")
	}
	if Keywords(General) != nil {
		t.Error("general has no keywords")
	}
}

func TestIsProductQuery(t *testing.T) {
	if !IsProductQuery("how much is the lamp") {
		t.Error("expected product query")
	}
	if IsProductQuery("good morning") {
		t.Error("did not expect product query")
	}
}

func TestLooksLikeProduct(t *testing.T) {
	tests := map[string]bool{
		"220ml bottle":    true,
		"stanley":         true,
		"5 pcs":           true,
		"what about that": false,
		"tell me a story": false,
	}
	for msg, want := range tests {
		if got := LooksLikeProduct(msg); got != want {
			t.Errorf("LooksLikeProduct(%q) = %v, want %v", msg, got, want)
		}
	}
}
