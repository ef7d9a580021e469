package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewReference returns a 32-char hex reference from 128 random bits. It is the
// transaction's public identity and idempotency key, so it must be
// non-enumerable and practically collision-free.
func NewReference() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reference: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ReceiptNumber derives the deterministic ticket/vote number printed on
// receipts: {campaign-prefix}-{type-code}-{reference-suffix}.
func ReceiptNumber(slug, campaignType, reference string) string {
	prefix := "CMF"
	if len(slug) >= 3 {
		prefix = upper3(slug)
	}
	code := "TK"
	switch campaignType {
	case "vote":
		code = "VT"
	case "merch":
		code = "MR"
	}
	suffix := reference
	if len(reference) > 6 {
		suffix = reference[len(reference)-6:]
	}
	return prefix + "-" + code + "-" + suffix
}

func upper3(s string) string {
	out := make([]byte, 3)
	for i := 0; i < 3; i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
