// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mention resolves inline @name references to document
// attachments and owns the pending attachment set for the unsent turn.
package mention

import "unicode"

// Trigger is an active @-mention span in the input. Start and Query are
// rune-indexed to match caret positions in the input widget.
type Trigger struct {
	Start int    // rune index of the '@'
	Query string // text between the '@' and the caret
}

// DetectTrigger scans backward from the caret to the nearest whitespace
// or start of input. The span is a trigger when it begins with '@' and
// contains no intervening whitespace.
//
// The caret is a rune index; out-of-range carets are clamped.
func DetectTrigger(text string, caret int) (Trigger, bool) {
	runes := []rune(text)
	if caret < 0 {
		caret = 0
	}
	if caret > len(runes) {
		caret = len(runes)
	}

	start := caret
	for start > 0 {
		r := runes[start-1]
		if unicode.IsSpace(r) {
			break
		}
		start--
	}
	if start >= caret || runes[start] != '@' {
		return Trigger{}, false
	}
	return Trigger{Start: start, Query: string(runes[start+1 : caret])}, true
}
