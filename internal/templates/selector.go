// Package templates renders the organization's canned replies: greetings,
// farewells, follow-up questions, human-contact lines and the local
// recovery templates used when no upstream answer is available.
package templates

import "math/rand/v2"

// Selector chooses an index into a named pool of n candidates. Replacing
// it with a fixed selector makes every rendered reply deterministic.
type Selector interface {
	Pick(pool string, n int) int
}

// RandomSelector picks uniformly at random.
type RandomSelector struct{}

// Pick returns a random index in [0, n), or 0 when n <= 0.
func (RandomSelector) Pick(_ string, n int) int {
	if n <= 0 {
		return 0
	}
	return rand.IntN(n) //nolint:gosec // variety, not security
}

// FixedSelector always picks the same index, clamped to the pool size.
type FixedSelector struct {
	Index int
}

// Pick returns min(Index, n-1), or 0 when n <= 0.
func (f FixedSelector) Pick(_ string, n int) int {
	if n <= 0 || f.Index < 0 {
		return 0
	}
	if f.Index >= n {
		return n - 1
	}
	return f.Index
}

// Choose returns one element of items using sel, or "" for an empty pool.
func Choose(sel Selector, pool string, items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[sel.Pick(pool, len(items))]
}

// SampleIndices draws k distinct indices from [0, n) using sel.
func SampleIndices(sel Selector, pool string, n, k int) []int {
	if k > n {
		k = n
	}
	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = i
	}
	out := make([]int, 0, k)
	for len(out) < k {
		j := sel.Pick(pool, len(remaining))
		out = append(out, remaining[j])
		remaining = append(remaining[:j], remaining[j+1:]...)
	}
	return out
}
