package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
)

// email request payload for the ZeptoMail API
type emailRequest struct {
	From     emailAddress  `json:"from"`
	To       []toRecipient `json:"to"`
	Subject  string        `json:"subject"`
	HtmlBody string        `json:"htmlbody"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type toRecipient struct {
	Email emailWithName `json:"email_address"`
}

type emailWithName struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// SendEmail sends an HTML email through the ZeptoMail HTTP API.
func SendEmail(to, toName, subject, body string) error {
	apiURL := os.Getenv("ZEPTO_API_URL") // e.g. https://api.zeptomail.com/v1.1/email
	apiKey := os.Getenv("ZEPTO_API_KEY")
	from := os.Getenv("EMAIL_FROM")

	if apiURL == "" || apiKey == "" || from == "" {
		return fmt.Errorf("missing ZEPTO_API_URL, ZEPTO_API_KEY or EMAIL_FROM")
	}

	payload := emailRequest{
		From: emailAddress{Address: from},
		To: []toRecipient{
			{Email: emailWithName{Address: to, Name: toName}},
		},
		Subject:  subject,
		HtmlBody: body,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("zeptomail returned status %d", resp.StatusCode)
	}
	return nil
}

// SendReceiptEmail emails a purchase receipt. Failures are the caller's to
// swallow; fulfillment never depends on delivery.
func SendReceiptEmail(to, toName, receiptNumber string, amount int64, currency string, quantity int) error {
	subject := fmt.Sprintf("Your receipt %s", receiptNumber)
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>Thank you for your purchase.</p>"+
			"<p>Receipt number: <strong>%s</strong><br>Amount: %s %d<br>Quantity: %d</p>"+
			"<p>CMF Agency</p>",
		toName, receiptNumber, currency, amount, quantity)
	if err := SendEmail(to, toName, subject, body); err != nil {
		log.Printf("[email] receipt %s to %s failed: %v", receiptNumber, to, err)
		return err
	}
	return nil
}
