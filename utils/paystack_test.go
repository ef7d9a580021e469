package utils

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"
)

func TestVerifyPaystackSignature(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_secret")
	body := []byte(`{"event":"charge.success"}`)

	mac := hmac.New(sha512.New, []byte("sk_test_secret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	if !VerifyPaystackSignature(body, sig) {
		t.Fatal("valid signature rejected")
	}
	if !VerifyPaystackSignature(body, strings.ToUpper(sig)) {
		t.Fatal("signature comparison must be case-insensitive")
	}
	if VerifyPaystackSignature(body, sig[:len(sig)-2]+"00") {
		t.Fatal("tampered signature accepted")
	}
	if VerifyPaystackSignature(append(body, ' '), sig) {
		t.Fatal("signature must cover the exact raw body")
	}
}

func TestVerifyPaystackSignatureWithoutSecret(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", "")
	if VerifyPaystackSignature([]byte("x"), "deadbeef") {
		t.Fatal("verification must fail closed without a secret")
	}
}

func TestIsPaystackSuccessStatus(t *testing.T) {
	for _, s := range []string{"success", "SUCCESS", " success "} {
		if !IsPaystackSuccessStatus(s) {
			t.Errorf("IsPaystackSuccessStatus(%q) = false", s)
		}
	}
	for _, s := range []string{"failed", "abandoned", "ongoing", ""} {
		if IsPaystackSuccessStatus(s) {
			t.Errorf("IsPaystackSuccessStatus(%q) = true", s)
		}
	}
}
