package security

import (
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestRateLimiterBurstThenWait(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(WithRequestsPerMinute(30), WithBurst(5), WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		if ok, _ := rl.Check("s1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, wait := rl.Check("s1")
	if ok {
		t.Fatal("6th rapid request should be rejected")
	}
	if wait <= 0 {
		t.Fatalf("wait seconds = %d, want > 0", wait)
	}

	// A rejected request does not consume a token.
	clock.Advance(time.Duration(wait) * time.Second)
	if ok, _ := rl.Check("s1"); !ok {
		t.Errorf("request after waiting %ds should be allowed", wait)
	}
}

func TestRateLimiterSessionsAreIndependent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	rl := NewRateLimiter(WithBurst(1), WithClock(clock.Now))
	if ok, _ := rl.Check("a"); !ok {
		t.Fatal("first request for a should pass")
	}
	if ok, _ := rl.Check("a"); ok {
		t.Fatal("second request for a should be throttled")
	}
	if ok, _ := rl.Check("b"); !ok {
		t.Fatal("session b must not share a's bucket")
	}
}

func TestRateLimiterRemainingAndCleanup(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	rl := NewRateLimiter(WithClock(clock.Now))
	rl.Check("a")
	rl.Check("a")
	if got := rl.Remaining("a"); got != 3 {
		t.Errorf("Remaining = %d, want 3", got)
	}

	clock.Advance(11 * time.Minute)
	rl.Check("fresh")
	if rl.Len() != 1 {
		t.Errorf("expected idle bucket to be collected, have %d buckets", rl.Len())
	}
}

func TestRateLimiterConcurrentSessions(t *testing.T) {
	rl := NewRateLimiter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rl.Check(string(rune('a' + i%26)))
		}(i)
	}
	wg.Wait()
	if rl.Len() != 26 {
		t.Errorf("Len = %d, want 26", rl.Len())
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"script stripped", "hi <script>alert(1)</script> there", "hi there"},
		{"event handler", `<img onerror=x>`, "&lt;img x&gt;"},
		{"javascript uri", "JavaScript:go", "go"},
		{"data uri", "data:text/html,boom", ",boom"},
		{"whitespace collapsed", "  track \n\t my   order ", "track my order"},
		{"nul removed", "a\x00b", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := strings.Repeat("x", 1500)
	if got := Sanitize(long); len(got) != MaxMessageLength {
		t.Errorf("Sanitize truncated to %d, want %d", len(got), MaxMessageLength)
	}
}

func TestSanitizeForDisplayKeepsFormatting(t *testing.T) {
	in := "**bold**\n<script>x</script>line"
	if got := SanitizeForDisplay(in); got != "**bold**\nline" {
		t.Errorf("SanitizeForDisplay = %q", got)
	}
}

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want string
	}{
		{"9841234567", true, "9841234567"},
		{"+977-9841234567", true, "9841234567"},
		{"(01) 4123-456 7", true, "0141234567"},
		{"12345", false, ""},
		{"9941234567", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		ok, got, msg := ValidatePhone(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ValidatePhone(%q) = (%v, %q), want (%v, %q)", tt.in, ok, got, tt.ok, tt.want)
		}
		if !ok && msg == "" {
			t.Errorf("ValidatePhone(%q) should explain the failure", tt.in)
		}
	}
}

func TestExtractPhone(t *testing.T) {
	if got := ExtractPhone("my number is 9812345678 thanks"); got != "9812345678" {
		t.Errorf("ExtractPhone = %q", got)
	}
	if got := ExtractPhone("198123456789"); got != "" {
		t.Errorf("ExtractPhone should not match inside longer digit runs, got %q", got)
	}
}

func TestValidateEmail(t *testing.T) {
	if ok, got, _ := ValidateEmail("  Ram@Example.COM "); !ok || got != "ram@example.com" {
		t.Errorf("ValidateEmail = (%v, %q)", ok, got)
	}
	if ok, _, msg := ValidateEmail("not-an-email"); ok || msg == "" {
		t.Error("expected invalid email")
	}
}

func TestValidateOrderID(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want string
	}{
		{"abc12345", true, "ABC12345"},
		{"3F2504E0-4F89-11D3-9A0C-0305E82C3301", true, "3f2504e0-4f89-11d3-9a0c-0305e82c3301"},
		{"xyz", false, ""},
		{"ghijklmn", false, ""},
	}
	for _, tt := range tests {
		ok, got, _ := ValidateOrderID(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ValidateOrderID(%q) = (%v, %q), want (%v, %q)", tt.in, ok, got, tt.ok, tt.want)
		}
	}
}

func TestMiddlewareProcess(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := NewMiddleware(NewRateLimiter(WithBurst(1), WithClock(clock.Now)))

	ok, clean, msg, _ := m.Process("s", "  hello   there ")
	if !ok || clean != "hello there" || msg != "" {
		t.Fatalf("Process = (%v, %q, %q)", ok, clean, msg)
	}
	ok, _, msg, wait := m.Process("s", "again")
	if ok || wait <= 0 || !strings.HasPrefix(msg, "Please slow down!") {
		t.Fatalf("expected throttling, got (%v, %q, %d)", ok, msg, wait)
	}

	clock.Advance(time.Minute)
	ok, _, msg, _ = m.Process("s", "<script>x</script>")
	if ok || msg != "Please enter a valid message." {
		t.Errorf("expected empty-after-sanitize rejection, got (%v, %q)", ok, msg)
	}
}
