package controller

import (
	"bytes"
	"testing"
)

func TestTUIClose(t *testing.T) {
	tui := NewTUI(&bytes.Buffer{})

	// Without a started progress display Close must return immediately, and
	// repeated calls must stay safe.
	tui.Close()
	tui.Close()
}
