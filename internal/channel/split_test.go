package channel

import (
	"strings"
	"testing"
)

func TestSplitMessage_Short(t *testing.T) {
	chunks := splitMessage("hello", 100)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("got %v", chunks)
	}
}

func TestSplitMessage_PrefersNewlines(t *testing.T) {
	msg := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 80)
	chunks := splitMessage(msg, 100)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n") {
		t.Error("first chunk should end at the newline")
	}
}

func TestSplitMessage_HardCut(t *testing.T) {
	msg := strings.Repeat("x", 250)
	chunks := splitMessage(msg, 100)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	var total int
	for _, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk exceeds limit: %d", len(c))
		}
		total += len(c)
	}
	if total != 250 {
		t.Errorf("content lost: %d of 250", total)
	}
}
