package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
)

// Minimal internal validator to avoid an external dependency. Supports:
// - required
// - email (loose RFC-ish check)
// - msisdn (Kenyan MSISDN in international format, 2547XXXXXXXX / 2541XXXXXXXX)
// - oneof=a b c (space-separated allowed values)

var (
	reEmail  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	reMSISDN = regexp.MustCompile(`^254(7|1)[0-9]{8}$`)
)

// ValidateStruct inspects struct tags `validate:"..."` and returns the first error encountered.
func ValidateStruct(s interface{}) error {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return errors.New("ValidateStruct expects a struct or pointer to struct")
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("validate")
		if tag == "" {
			continue
		}
		parts := strings.Split(tag, ",")
		fv := v.Field(i)
		var sval string
		if fv.IsValid() && fv.Kind() == reflect.String {
			sval = fv.String()
		}
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if strings.HasPrefix(p, "oneof=") {
				if sval == "" {
					continue
				}
				ok := false
				for _, allowed := range strings.Fields(strings.TrimPrefix(p, "oneof=")) {
					if sval == allowed {
						ok = true
						break
					}
				}
				if !ok {
					return errors.New(field.Name + " must be one of: " + strings.TrimPrefix(p, "oneof="))
				}
				continue
			}
			switch p {
			case "required":
				if sval == "" {
					return errors.New(field.Name + " is required")
				}
			case "email":
				if sval != "" && !reEmail.MatchString(sval) {
					return errors.New(field.Name + " must be a valid email address")
				}
			case "msisdn":
				if sval != "" && !reMSISDN.MatchString(sval) {
					return errors.New(field.Name + " must be an MSISDN in 2547XXXXXXXX format")
				}
			}
		}
	}
	return nil
}
