package entity

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want Bundle
	}{
		{
			name: "phone",
			msg:  "my number is 9841234567",
			want: Bundle{Phones: []string{"9841234567"}},
		},
		{
			name: "two phones",
			msg:  "9841234567 or 9801234567",
			want: Bundle{Phones: []string{"9841234567", "9801234567"}},
		},
		{
			name: "short order id uppercased",
			msg:  "order abcd1234 please",
			want: Bundle{OrderID: "ABCD1234"},
		},
		{
			name: "uuid wins over short id",
			msg:  "id 3f2504e0-4f89-11d3-9a0c-0305e82c3301",
			want: Bundle{OrderID: "3f2504e0-4f89-11d3-9a0c-0305e82c3301"},
		},
		{
			name: "rating with stars",
			msg:  "I give it 4 stars",
			want: Bundle{Rating: 4, Quantity: 4},
		},
		{
			name: "quantity out of range is discarded",
			msg:  "I need 150 pieces",
			want: Bundle{},
		},
		{
			name: "quantity in range",
			msg:  "send 12 pcs",
			want: Bundle{Quantity: 12},
		},
		{
			name: "price with commas",
			msg:  "something under Rs. 1,500",
			want: Bundle{MaxPrice: 1500, Quantity: 1, Rating: 1},
		},
		{
			name: "email",
			msg:  "mail me at ram.k@example.com",
			want: Bundle{Email: "ram.k@example.com"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.msg)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract(%q) = %+v, want %+v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestExtractEmptyMessage(t *testing.T) {
	if b := Extract("hello there"); !b.Empty() {
		t.Errorf("expected empty bundle, got %+v", b)
	}
}

func TestRatingFallsBackToWords(t *testing.T) {
	tests := map[string]int{
		"5":                5,
		"3 out of 5":       3,
		"I'd say four":     4,
		"nothing to rate":  0,
		"someone said two": 2,
	}
	for msg, want := range tests {
		if got := Rating(msg); got != want {
			t.Errorf("Rating(%q) = %d, want %d", msg, got, want)
		}
	}
}

func TestQuantity(t *testing.T) {
	tests := map[string]int{
		"2":          2,
		"three":      3,
		"ten please": 10,
		"0":          0,
		"none":       0,
	}
	for msg, want := range tests {
		if got := Quantity(msg); got != want {
			t.Errorf("Quantity(%q) = %d, want %d", msg, got, want)
		}
	}
}

func TestProductKeywords(t *testing.T) {
	got := ProductKeywords("I want to buy vacuum cup")
	want := []string{"vacuum", "cup"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ProductKeywords = %v, want %v", got, want)
	}
}
