// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reference

import (
	"regexp"
	"unicode/utf8"
)

// mentionPattern matches an "@" token that runs up to the caret.
var mentionPattern = regexp.MustCompile(`@[\w\s-]*$`)

// Trigger is an inline mention token in the compose text. Start and End are
// rune offsets; End is the caret.
type Trigger struct {
	Start int
	End   int
	Query string
}

// DetectTrigger scans backward from caret for an "@" token reaching it.
// caret is a rune offset and is clamped to the text.
func DetectTrigger(text string, caret int) (Trigger, bool) {
	runes := []rune(text)
	if caret < 0 {
		caret = 0
	}
	if caret > len(runes) {
		caret = len(runes)
	}

	before := string(runes[:caret])
	loc := mentionPattern.FindStringIndex(before)
	if loc == nil {
		return Trigger{}, false
	}
	start := utf8.RuneCountInString(before[:loc[0]])
	return Trigger{
		Start: start,
		End:   caret,
		Query: before[loc[0]+1:],
	}, true
}
