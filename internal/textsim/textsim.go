// Package textsim implements Ratcliff/Obershelp string similarity: a similarity ratio between
// two strings and a close-match lookup over candidate strings.
//
// Ratios are computed over runes, so Devanagari and other multi-byte text compare per character.
package textsim

import "sort"

// autojunkMin is the sequence length at which very frequent runes stop seeding matches.
const autojunkMin = 200

// Matcher compares a sequence a against a fixed sequence b. Reuse a Matcher when comparing many
// strings against the same b; the index of b is built once.
type Matcher struct {
	b       []rune
	b2j     map[rune][]int
	fullBCt map[rune]int
}

// NewMatcher indexes b for repeated comparisons.
func NewMatcher(b string) *Matcher {
	m := &Matcher{b: []rune(b)}
	m.index()
	return m
}

func (m *Matcher) index() {
	m.b2j = make(map[rune][]int)
	for j, r := range m.b {
		m.b2j[r] = append(m.b2j[r], j)
	}
	n := len(m.b)
	if n >= autojunkMin {
		ntest := n/100 + 1
		for r, idx := range m.b2j {
			if len(idx) > ntest {
				delete(m.b2j, r)
			}
		}
	}
}

type match struct{ i, j, size int }

func (m *Matcher) longestMatch(a []rune, alo, ahi, blo, bhi int) match {
	besti, bestj, bestsize := alo, blo, 0
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range m.b2j[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}
	b := m.b
	for besti > alo && bestj > blo && a[besti-1] == b[bestj-1] {
		besti, bestj, bestsize = besti-1, bestj-1, bestsize+1
	}
	for besti+bestsize < ahi && bestj+bestsize < bhi && a[besti+bestsize] == b[bestj+bestsize] {
		bestsize++
	}
	return match{besti, bestj, bestsize}
}

// matches returns the total size of all matching blocks between a and b.
func (m *Matcher) matches(a []rune) int {
	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(a), 0, len(m.b)}}
	total := 0
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x := m.longestMatch(a, s.alo, s.ahi, s.blo, s.bhi)
		if x.size == 0 {
			continue
		}
		total += x.size
		if s.alo < x.i && s.blo < x.j {
			queue = append(queue, span{s.alo, x.i, s.blo, x.j})
		}
		if x.i+x.size < s.ahi && x.j+x.size < s.bhi {
			queue = append(queue, span{x.i + x.size, s.ahi, x.j + x.size, s.bhi})
		}
	}
	return total
}

// Ratio returns 2*M/T for a against the matcher's b, where M is the number of matched runes and
// T the combined length. Two empty strings are identical (1.0).
func (m *Matcher) Ratio(a string) float64 {
	ar := []rune(a)
	t := len(ar) + len(m.b)
	if t == 0 {
		return 1.0
	}
	return 2.0 * float64(m.matches(ar)) / float64(t)
}

// quickRatio is an upper bound on Ratio based on rune multisets.
func (m *Matcher) quickRatio(a []rune) float64 {
	if m.fullBCt == nil {
		m.fullBCt = make(map[rune]int, len(m.b))
		for _, r := range m.b {
			m.fullBCt[r]++
		}
	}
	avail := make(map[rune]int)
	matches := 0
	for _, r := range a {
		n, ok := avail[r]
		if !ok {
			n = m.fullBCt[r]
		}
		avail[r] = n - 1
		if n > 0 {
			matches++
		}
	}
	t := len(a) + len(m.b)
	if t == 0 {
		return 1.0
	}
	return 2.0 * float64(matches) / float64(t)
}

// Ratio is a one-shot similarity of a and b in [0, 1].
func Ratio(a, b string) float64 {
	return NewMatcher(b).Ratio(a)
}

// CloseMatches returns up to n candidates whose ratio against word is at least cutoff, best
// first. Equal scores are ordered by the candidate string, descending.
func CloseMatches(word string, candidates []string, n int, cutoff float64) []string {
	if n <= 0 {
		return nil
	}
	m := NewMatcher(word)
	type scored struct {
		score float64
		s     string
	}
	var hits []scored
	for _, c := range candidates {
		cr := []rune(c)
		lt := len(cr) + len(m.b)
		if lt > 0 {
			shorter := min(len(cr), len(m.b))
			if 2.0*float64(shorter)/float64(lt) < cutoff {
				continue
			}
		}
		if m.quickRatio(cr) < cutoff {
			continue
		}
		if r := m.Ratio(c); r >= cutoff {
			hits = append(hits, scored{r, c})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].s > hits[j].s
	})
	if len(hits) > n {
		hits = hits[:n]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.s
	}
	return out
}
