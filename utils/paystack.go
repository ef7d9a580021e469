package utils

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

func getPaystackConfig() (baseURL, secretKey, callbackURL string, err error) {
	baseURL = os.Getenv("PAYSTACK_BASE_URL")
	secretKey = os.Getenv("PAYSTACK_SECRET_KEY")
	callbackURL = os.Getenv("PAYSTACK_CALLBACK_URL")

	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	if secretKey == "" {
		return "", "", "", fmt.Errorf("PAYSTACK_SECRET_KEY is required")
	}
	return baseURL, secretKey, callbackURL, nil
}

// VerifyPaystackSignature checks the x-paystack-signature header: hex-encoded
// HMAC-SHA512 of the raw request body keyed with the secret key. Comparison is
// constant-time.
func VerifyPaystackSignature(body []byte, signature string) bool {
	_, secretKey, _, err := getPaystackConfig()
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// PaystackInitResponse from /transaction/initialize
type PaystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// InitializePaystackTransaction creates a charge for the given reference.
// Amount is in base currency units; Paystack wants minor units.
func InitializePaystackTransaction(ctx context.Context, client *http.Client, reference, email string, amount int64, currency string) (*PaystackInitResponse, error) {
	baseURL, secretKey, callbackURL, err := getPaystackConfig()
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(baseURL, "/") + "/transaction/initialize"

	bodyObj := map[string]interface{}{
		"reference": reference,
		"email":     email,
		"amount":    ToMinorUnits(amount),
		"currency":  currency,
	}
	if callbackURL != "" {
		bodyObj["callback_url"] = callbackURL
	}
	body, _ := json.Marshal(bodyObj)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secretKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	var result PaystackInitResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse initialize response: %w (body: %s)", err, string(respBody))
	}
	if !result.Status {
		return nil, fmt.Errorf("paystack initialize: %s", result.Message)
	}
	if result.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("paystack initialize: empty authorization_url")
	}
	return &result, nil
}

// PaystackVerifyResponse from /transaction/verify/:reference
type PaystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID        int64  `json:"id"`
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		PaidAt    string `json:"paid_at"`
		Channel   string `json:"channel"`
	} `json:"data"`
}

// VerifyPaystackTransaction fetches the charge state by reference.
func VerifyPaystackTransaction(ctx context.Context, client *http.Client, reference string) (*PaystackVerifyResponse, error) {
	baseURL, secretKey, _, err := getPaystackConfig()
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(baseURL, "/") + "/transaction/verify/" + reference

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+secretKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	var result PaystackVerifyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse verify response: %w (body: %s)", err, string(respBody))
	}
	if !result.Status {
		return nil, fmt.Errorf("paystack verify: %s", result.Message)
	}
	return &result, nil
}

// IsPaystackSuccessStatus reports whether a charge status means money moved.
func IsPaystackSuccessStatus(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), "success")
}
