// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reference

import (
	"sort"
	"strings"
	"unicode"
)

// =============================================================================
// FUZZY MATCHING
// =============================================================================

// fuzzyScore matches query against target as an in-order subsequence,
// case-insensitively. Consecutive runs, word starts and exact-case hits score
// higher; longer targets are penalized slightly.
func fuzzyScore(query, target string) (int, bool) {
	if query == "" {
		return 0, true
	}

	q := []rune(strings.ToLower(query))
	lower := []rune(strings.ToLower(target))
	orig := []rune(target)
	origQ := []rune(query)
	if len(q) > len(lower) {
		return 0, false
	}

	score, qi, last := 0, 0, -1
	for ti := 0; ti < len(lower) && qi < len(q); ti++ {
		if lower[ti] != q[qi] {
			continue
		}
		s := 1
		if last == ti-1 {
			s += 5
		}
		if ti == 0 {
			s += 10
		}
		if wordStart(orig, ti) {
			s += 7
		}
		if ti < len(orig) && qi < len(origQ) && orig[ti] == origQ[qi] {
			s += 2
		}
		score += s
		last = ti
		qi++
	}
	if qi != len(q) {
		return 0, false
	}
	return score - len(lower)/4, true
}

func wordStart(runes []rune, pos int) bool {
	if pos == 0 {
		return true
	}
	if pos >= len(runes) {
		return false
	}
	prev := runes[pos-1]
	switch prev {
	case ' ', '/', '-', '_':
		return true
	}
	return unicode.IsLower(prev) && unicode.IsUpper(runes[pos])
}

// filterCandidates keeps the candidates whose title matches query, best
// first. Ties keep their input order.
func filterCandidates(query string, in []Candidate) []Candidate {
	if query == "" {
		return append([]Candidate(nil), in...)
	}
	type scored struct {
		c     Candidate
		score int
	}
	var matches []scored
	for _, c := range in {
		if s, ok := fuzzyScore(query, c.Title); ok {
			matches = append(matches, scored{c, s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.c)
	}
	return out
}
