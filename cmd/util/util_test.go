package util

import (
	"reflect"
	"testing"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"SET key value", []string{"SET", "key", "value"}},
		{"  GET   key  ", []string{"GET", "key"}},
		{`SET key "hello world"`, []string{"SET", "key", "hello world"}},
		{`SET key ""`, []string{"SET", "key", ""}},
		{`ECHO "say \"hi\""`, []string{"ECHO", `say "hi"`}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := SplitArgs(tt.line)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	if _, err := SplitArgs(`ECHO "open`); err == nil {
		t.Errorf("Expected error for unbalanced quotes")
	}
}

func TestWrapString(t *testing.T) {
	text := "one two three four five six seven eight nine ten eleven twelve thirteen"
	for _, line := range splitLines(WrapString(text)) {
		if len(line) > Wrap {
			t.Errorf("Expected lines of at most %d characters, got %d: %q", Wrap, len(line), line)
		}
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}
