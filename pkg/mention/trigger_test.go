// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mention

import "testing"

func TestDetectTrigger(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		caret     int
		wantOK    bool
		wantStart int
		wantQuery string
	}{
		{"at start of input", "@Inv", 4, true, 0, "Inv"},
		{"after a word", "see @Inv", 8, true, 4, "Inv"},
		{"bare at sign", "see @", 5, true, 4, ""},
		{"caret mid-query", "see @Invoice", 8, true, 4, "Inv"},
		{"no trigger", "plain text", 10, false, 0, ""},
		{"space closes the span", "see @Inv done", 13, false, 0, ""},
		{"newline closes the span", "see @Inv\nnext", 13, false, 0, ""},
		{"at sign inside word", "mail a@b", 8, false, 0, ""},
		{"empty input", "", 0, false, 0, ""},
		{"caret before the at sign", "see @Inv", 4, false, 0, ""},
		{"caret past end is clamped", "@x", 99, true, 0, "x"},
		{"unicode query", "@Résumé", 7, true, 0, "Résumé"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			trigger, ok := DetectTrigger(tc.text, tc.caret)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if trigger.Start != tc.wantStart || trigger.Query != tc.wantQuery {
				t.Errorf("trigger = %+v, want start %d query %q", trigger, tc.wantStart, tc.wantQuery)
			}
		})
	}
}
