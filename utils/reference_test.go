package utils

import (
	"regexp"
	"testing"
)

func TestNewReferenceShapeAndUniqueness(t *testing.T) {
	hex32 := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		ref, err := NewReference()
		if err != nil {
			t.Fatalf("NewReference: %v", err)
		}
		if !hex32.MatchString(ref) {
			t.Fatalf("reference %q is not 32 hex chars", ref)
		}
		if seen[ref] {
			t.Fatalf("duplicate reference %q", ref)
		}
		seen[ref] = true
	}
}

func TestReceiptNumber(t *testing.T) {
	cases := []struct {
		slug, campaignType, reference, want string
	}{
		{"gala-night", "ticket", "a1b2c3d4e5f60718293a4b5c6d7e8f90", "GAL-TK-7e8f90"},
		{"miss-nairobi", "vote", "00000000000000000000000000abcdef", "MIS-VT-abcdef"},
		{"xy", "merch", "abcdef", "CMF-MR-abcdef"},
	}
	for _, c := range cases {
		if got := ReceiptNumber(c.slug, c.campaignType, c.reference); got != c.want {
			t.Errorf("ReceiptNumber(%q, %q, %q) = %q, want %q", c.slug, c.campaignType, c.reference, got, c.want)
		}
	}
}
