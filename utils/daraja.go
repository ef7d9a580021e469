package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func getDarajaConfig() (baseURL, consumerKey, consumerSecret, shortcode, passkey, callbackURL string, err error) {
	baseURL = os.Getenv("DARAJA_BASE_URL")
	consumerKey = os.Getenv("DARAJA_CONSUMER_KEY")
	consumerSecret = os.Getenv("DARAJA_CONSUMER_SECRET")
	shortcode = os.Getenv("DARAJA_SHORTCODE")
	passkey = os.Getenv("DARAJA_PASSKEY")
	callbackURL = os.Getenv("DARAJA_STK_CALLBACK_URL")

	if baseURL == "" {
		baseURL = "https://api.safaricom.co.ke"
	}
	if consumerKey == "" || consumerSecret == "" || shortcode == "" || passkey == "" {
		return "", "", "", "", "", "", fmt.Errorf("DARAJA_CONSUMER_KEY, DARAJA_CONSUMER_SECRET, DARAJA_SHORTCODE and DARAJA_PASSKEY are required")
	}
	return baseURL, consumerKey, consumerSecret, shortcode, passkey, callbackURL, nil
}

func darajaTimestamp(t time.Time) string {
	loc, _ := time.LoadLocation("Africa/Nairobi")
	return t.In(loc).Format("20060102150405")
}

// stkPassword is base64(shortcode + passkey + timestamp).
func stkPassword(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

// DarajaTokenResponse from /oauth/v1/generate
type DarajaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// GetDarajaAccessToken obtains an OAuth token using client credentials.
func GetDarajaAccessToken(ctx context.Context, client *http.Client) (string, error) {
	baseURL, consumerKey, consumerSecret, _, _, _, err := getDarajaConfig()
	if err != nil {
		return "", err
	}
	url := strings.TrimRight(baseURL, "/") + "/oauth/v1/generate?grant_type=client_credentials"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(consumerKey, consumerSecret)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	var tok DarajaTokenResponse
	if err := json.Unmarshal(respBody, &tok); err != nil {
		return "", fmt.Errorf("parse token: %w (body: %s)", err, string(respBody))
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("daraja token empty (body: %s)", string(respBody))
	}
	return tok.AccessToken, nil
}

// DarajaSTKPushResponse from /mpesa/stkpush/v1/processrequest
type DarajaSTKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// InitiateSTKPush sends an STK push prompt to the buyer's phone. The ledger
// reference travels as AccountReference so the provider echoes it back.
func InitiateSTKPush(ctx context.Context, client *http.Client, accessToken, phone, reference string, amount int64) (*DarajaSTKPushResponse, error) {
	baseURL, _, _, shortcode, passkey, callbackURL, err := getDarajaConfig()
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(baseURL, "/") + "/mpesa/stkpush/v1/processrequest"

	timestamp := darajaTimestamp(time.Now())
	bodyObj := map[string]interface{}{
		"BusinessShortCode": shortcode,
		"Password":          stkPassword(shortcode, passkey, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount,
		"PartyA":            phone,
		"PartyB":            shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       callbackURL,
		"AccountReference":  reference,
		"TransactionDesc":   "CMF checkout",
	}
	body, _ := json.Marshal(bodyObj)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	var result DarajaSTKPushResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse stkpush response: %w (body: %s)", err, string(respBody))
	}
	if result.ResponseCode != "0" {
		return nil, fmt.Errorf("daraja stkpush %s: %s", result.ResponseCode, result.ResponseDescription)
	}
	return &result, nil
}

// DarajaSTKQueryResponse from /mpesa/stkpushquery/v1/query
type DarajaSTKQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// QuerySTKPushStatus checks the outcome of a previous STK push.
func QuerySTKPushStatus(ctx context.Context, client *http.Client, accessToken, checkoutRequestID string) (*DarajaSTKQueryResponse, error) {
	baseURL, _, _, shortcode, passkey, _, err := getDarajaConfig()
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(baseURL, "/") + "/mpesa/stkpushquery/v1/query"

	timestamp := darajaTimestamp(time.Now())
	bodyObj := map[string]interface{}{
		"BusinessShortCode": shortcode,
		"Password":          stkPassword(shortcode, passkey, timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}
	body, _ := json.Marshal(bodyObj)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	var result DarajaSTKQueryResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse stkquery response: %w (body: %s)", err, string(respBody))
	}
	return &result, nil
}

// DarajaB2CResponse from /mpesa/b2c/v1/paymentrequest
type DarajaB2CResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// InitiateB2CPayment pays out an approved withdrawal to an M-Pesa number.
func InitiateB2CPayment(ctx context.Context, client *http.Client, accessToken, phone string, amount int64, remarks string) (*DarajaB2CResponse, error) {
	baseURL, _, _, _, _, _, err := getDarajaConfig()
	if err != nil {
		return nil, err
	}
	initiator := os.Getenv("DARAJA_B2C_INITIATOR")
	credential := os.Getenv("DARAJA_B2C_SECURITY_CREDENTIAL")
	b2cShortcode := os.Getenv("DARAJA_B2C_SHORTCODE")
	resultURL := os.Getenv("DARAJA_B2C_RESULT_URL")
	timeoutURL := os.Getenv("DARAJA_B2C_TIMEOUT_URL")
	if initiator == "" || credential == "" || b2cShortcode == "" || resultURL == "" {
		return nil, fmt.Errorf("DARAJA_B2C_INITIATOR, DARAJA_B2C_SECURITY_CREDENTIAL, DARAJA_B2C_SHORTCODE and DARAJA_B2C_RESULT_URL are required")
	}
	if timeoutURL == "" {
		timeoutURL = resultURL
	}
	url := strings.TrimRight(baseURL, "/") + "/mpesa/b2c/v1/paymentrequest"

	bodyObj := map[string]interface{}{
		"InitiatorName":      initiator,
		"SecurityCredential": credential,
		"CommandID":          "BusinessPayment",
		"Amount":             amount,
		"PartyA":             b2cShortcode,
		"PartyB":             phone,
		"Remarks":            remarks,
		"QueueTimeOutURL":    timeoutURL,
		"ResultURL":          resultURL,
		"Occasion":           "",
	}
	body, _ := json.Marshal(bodyObj)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	var result DarajaB2CResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse b2c response: %w (body: %s)", err, string(respBody))
	}
	if result.ResponseCode != "0" {
		return nil, fmt.Errorf("daraja b2c %s: %s", result.ResponseCode, result.ResponseDescription)
	}
	return &result, nil
}
