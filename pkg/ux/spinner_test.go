// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"testing"
	"time"
)

func TestSpinnerStartStop(t *testing.T) {
	spin := NewSpinner("working")
	spin.Start()
	time.Sleep(10 * time.Millisecond)
	spin.Stop()

	// Stop again must not panic or block.
	spin.Stop()
}

func TestSpinnerDoubleStart(t *testing.T) {
	spin := NewSpinner("working")
	spin.Start()
	spin.Start()
	spin.Stop()
}

func TestSpinnerPlainMode(t *testing.T) {
	SetPlain(true)
	defer SetPlain(false)

	spin := NewSpinner("working")
	spin.Start()
	spin.Stop()
}

func TestWithSpinnerPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	err := WithSpinner("step", func() error { return wantErr })
	if err != wantErr {
		t.Errorf("err = %v, want %v", err, wantErr)
	}

	if err := WithSpinner("step", func() error { return nil }); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestPlainToggle(t *testing.T) {
	SetPlain(true)
	if !Plain() {
		t.Error("plain mode not set")
	}
	SetPlain(false)
	if Plain() {
		t.Error("plain mode not cleared")
	}
}
