package util

import (
	"fmt"
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line longer than %d: %q", Wrap, line)
		}
	}
	if got := WrapString("  short   text "); got != "short text" {
		t.Errorf("expected %q, got %q", "short text", got)
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		args []string
		want []string
	}{
		{nil, nil},
		{[]string{"a"}, []string{"a"}},
		{[]string{"a/b/c"}, []string{"a", "b", "c"}},
		{[]string{"a", "b/c"}, []string{"a", "b", "c"}},
		{[]string{"/a//b/"}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			if got := SplitPath(tt.args); fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("SplitPath(%q) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestHashString(t *testing.T) {
	if HashString("node-1") != HashString("node-1") {
		t.Error("hash is not deterministic")
	}
	if HashString("node-1") == HashString("node-2") {
		t.Error("distinct names collide")
	}
}
