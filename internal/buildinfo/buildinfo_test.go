package buildinfo

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })

	Version, Commit, Date = "v1.2.3", "", ""
	if got := String("receiptd"); !strings.HasPrefix(got, "receiptd v1.2.3 go") {
		t.Fatalf("String()=%q", got)
	}

	Commit, Date = "abc123", "2026-01-01"
	if got := String("receiptd"); !strings.Contains(got, "(abc123, 2026-01-01)") {
		t.Fatalf("String()=%q", got)
	}
}
