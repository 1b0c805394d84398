package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestResolvePricePrecedence(t *testing.T) {
	tests := []struct {
		name         string
		in           RawPrices
		wantDisplay  float64
		wantOriginal float64
	}{
		{"flash wins over compare", RawPrices{Price: 1000, ComparePrice: 800, FlashSalePrice: 600}, 600, 800},
		{"flash without compare", RawPrices{Price: 1000, FlashSalePrice: 600}, 600, 1000},
		{"compare is selling price", RawPrices{Price: 1000, ComparePrice: 800}, 800, 1000},
		{"plain price", RawPrices{Price: 1000}, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, o := ResolvePrice(tt.in)
			if d != tt.wantDisplay || o != tt.wantOriginal {
				t.Errorf("ResolvePrice(%+v) = (%v, %v), want (%v, %v)", tt.in, d, o, tt.wantDisplay, tt.wantOriginal)
			}
		})
	}
}

func TestFormatPrice(t *testing.T) {
	tests := map[float64]string{
		0:       "Rs. 0",
		999:     "Rs. 999",
		1250:    "Rs. 1,250",
		1234567: "Rs. 1,234,567",
		99.6:    "Rs. 100",
	}
	for in, want := range tests {
		if got := FormatPrice(in); got != want {
			t.Errorf("FormatPrice(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestProductSummary(t *testing.T) {
	p := Product{Name: "Vacuum Cup", Price: 800, ComparePrice: 1000, Stock: 3}
	want := "**Vacuum Cup**\nPrice: Rs. 800 ~~Rs. 1,000~~\nStatus: In Stock"
	if got := p.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}

	p = Product{Name: "Lamp", Price: 500}
	want = "**Lamp**\nPrice: Rs. 500\nStatus: Out of Stock"
	if got := p.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}

func TestStars(t *testing.T) {
	if got := Stars(3); got != "★★★☆☆" {
		t.Errorf("Stars(3) = %q", got)
	}
	if got := Stars(9); got != "★★★★★" {
		t.Errorf("Stars(9) = %q", got)
	}
}

func TestOrderHelpers(t *testing.T) {
	o := Order{
		Status:         "shipped",
		ShippingCost:   100,
		DiscountAmount: 50,
		Items: []OrderItem{
			{ProductName: "Cup", Quantity: 2, UnitPrice: 300},
			{ProductName: "Jar", Quantity: 1, UnitPrice: 200},
		},
	}
	if got := o.Number(); got != "N/A" {
		t.Errorf("Number() = %q, want N/A", got)
	}
	if got := o.DisplayStatus(); got != "Shipped" {
		t.Errorf("DisplayStatus() = %q, want Shipped", got)
	}
	if got := o.ComputedTotal(); got != 850 {
		t.Errorf("ComputedTotal() = %v, want 850", got)
	}
	if StatusEmoji("shipped") != "🚚" {
		t.Error("expected truck emoji for shipped")
	}
}

func TestParseShippingAddress(t *testing.T) {
	addr := ParseShippingAddress("Ram Shrestha\n9841234567\nHetauda\nLandmark: Near bus park\n")
	if addr.Name != "Ram Shrestha" || addr.Phone != "9841234567" || addr.Location != "Hetauda" || addr.Landmark != "Near bus park" {
		t.Errorf("unexpected parse: %+v", addr)
	}
}

func TestFriendlyErrorDeterministic(t *testing.T) {
	orig := ErrorPick
	defer func() { ErrorPick = orig }()
	ErrorPick = func(int) int { return 0 }

	if got := FriendlyError(ErrorKindInvalidPhone, false); got != "Please enter a valid 10-digit phone number (e.g., 9841234567)" {
		t.Errorf("unexpected english message %q", got)
	}
	if got := FriendlyError(ErrorKindInvalidPhone, true); got != "Thik phone number dinus (10 digits)" {
		t.Errorf("unexpected nepali message %q", got)
	}
	// No Nepali bank for timeout: english is used.
	if got := FriendlyError(ErrorKindTimeout, true); got != "That took longer than expected. Let me try again..." {
		t.Errorf("unexpected fallback message %q", got)
	}
	if got := FriendlyError("nope", false); got != "Something unexpected happened. Please try again." {
		t.Errorf("unexpected unknown message %q", got)
	}
	if got := RateLimitedMessage(4, false); got != "Whoa, slow down! Please wait a few seconds before sending more messages. (4s)" {
		t.Errorf("unexpected rate limit message %q", got)
	}
}

func TestKindForError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{&RateLimitError{WaitSeconds: 3}, ErrorKindRateLimited},
		{fmt.Errorf("backend: %w", ErrCircuitOpen), ErrorKindConnection},
		{fmt.Errorf("llm: %w", ErrAIUnavailable), ErrorKindAIUnavailable},
		{errors.New("boom"), ErrorKindUnknown},
	}
	for _, tt := range tests {
		if got := KindForError(tt.err); got != tt.want {
			t.Errorf("KindForError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if !errors.Is(&RateLimitError{}, ErrRateLimited) {
		t.Error("RateLimitError should unwrap to ErrRateLimited")
	}
}

func TestEnvelopes(t *testing.T) {
	tests := []struct {
		name       string
		got        APIResponse
		wantStatus string
		wantMsg    string
		wantResult bool
	}{
		{"success", Success(map[string]int{"n": 1}), StatusOK, "", true},
		{"success with note", SuccessWithMessage("session cleared", nil), StatusOK, "session cleared", false},
		{"error", Error("bad"), StatusError, "bad", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.Status != tt.wantStatus || tt.got.Message != tt.wantMsg || (tt.got.Result != nil) != tt.wantResult {
				t.Errorf("unexpected envelope %+v", tt.got)
			}
		})
	}
}
