package delivery

import "testing"

func TestDefaultTableLoads(t *testing.T) {
	tbl := Default()
	if len(tbl.Entries()) == 0 {
		t.Fatal("embedded rate table is empty")
	}
	if got := len(tbl.Popular()); got != 10 {
		t.Errorf("expected 10 popular districts, got %d", got)
	}
	if tbl.Districts()[0] != "Kathmandu" {
		t.Errorf("expected Kathmandu first, got %q", tbl.Districts()[0])
	}
}

func TestFindDistrict(t *testing.T) {
	tbl := Default()
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Kathmandu", "Kathmandu", true},
		{"chitwan district", "Chitwan", true},
		{"kask", "Kaski", true},
		{"Atlantis", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := tbl.FindDistrict(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FindDistrict(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFindLocationAndRate(t *testing.T) {
	tbl := Default()
	e, ok := tbl.FindLocation("hetauda")
	if !ok || e.District != "Makwanpur" || e.Rate != 150 {
		t.Fatalf("FindLocation(hetauda) = %+v, %v", e, ok)
	}
	e, ok = tbl.FindLocation("narayan")
	if !ok || e.Location != "Narayangarh" {
		t.Fatalf("FindLocation(narayan) = %+v, %v", e, ok)
	}
	if got := tbl.Rate("Kaski", "Pokhara"); got != 150 {
		t.Errorf("Rate(Kaski, Pokhara) = %v", got)
	}
	if got := tbl.Rate("Nowhere", "Nothing"); got != DefaultRate {
		t.Errorf("expected default rate, got %v", got)
	}
	if locs := tbl.Locations("Chitwan"); len(locs) != 4 {
		t.Errorf("expected 4 Chitwan locations, got %d", len(locs))
	}
	if !tbl.MentionsLocation("deliver to dharan please") {
		t.Error("expected dharan to be recognised")
	}
}

func TestMatchLocation(t *testing.T) {
	locs := Default().Locations("Chitwan")
	if e, ok := MatchLocation(locs, "sauraha"); !ok || e.Rate != 180 {
		t.Errorf("MatchLocation(sauraha) = %+v, %v", e, ok)
	}
	if e, ok := MatchLocation(locs, "near tandi chowk"); !ok || e.Location != "Tandi" {
		t.Errorf("MatchLocation(near tandi chowk) = %+v, %v", e, ok)
	}
	if _, ok := MatchLocation(locs, "pokhara"); ok {
		t.Error("pokhara is not in Chitwan")
	}
}

func TestExtractPlace(t *testing.T) {
	tests := map[string]string{
		"I live in Hetauda":     "Hetauda",
		"but i live in hetauda": "Hetauda",
		"from dharan":           "Dharan",
		"Kathmandu":             "Kathmandu",
		"near the temple":       "Near The Temple",
	}
	for in, want := range tests {
		if got := ExtractPlace(in); got != want {
			t.Errorf("ExtractPlace(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseCustomTable(t *testing.T) {
	tbl := Parse([]byte(`[{"district":"A","location":"X","rate":90},{"district":"B","location":"Y","rate":110.5}]`))
	if got := tbl.Districts(); len(got) != 2 || got[1] != "B" {
		t.Fatalf("Districts = %v", got)
	}
	if got := tbl.Rate("b", "y"); got != 110.5 {
		t.Errorf("Rate = %v", got)
	}
	if len(tbl.Popular()) != 0 {
		t.Error("custom table has no popular districts")
	}
}
