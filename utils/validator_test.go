package utils

import "testing"

type validatedForm struct {
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"msisdn"`
	Provider string `json:"provider" validate:"oneof=paystack daraja"`
}

func TestValidateStruct(t *testing.T) {
	cases := []struct {
		name    string
		form    validatedForm
		wantErr bool
	}{
		{"valid", validatedForm{Email: "a@b.co", Phone: "254712345678", Provider: "paystack"}, false},
		{"missing email", validatedForm{Phone: "254712345678", Provider: "daraja"}, true},
		{"bad email", validatedForm{Email: "not-an-email", Provider: "daraja"}, true},
		{"local phone format", validatedForm{Email: "a@b.co", Phone: "0712345678", Provider: "daraja"}, true},
		{"bad provider", validatedForm{Email: "a@b.co", Provider: "stripe"}, true},
		{"optional fields empty", validatedForm{Email: "a@b.co"}, false},
	}
	for _, c := range cases {
		err := ValidateStruct(&c.form)
		if c.wantErr && err == nil {
			t.Errorf("%s: expected an error", c.name)
		}
		if !c.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
	}
}
