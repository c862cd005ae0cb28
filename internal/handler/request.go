package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/homebudget/internal/model"
)

const maxBodyBytes = 1 << 20

// Amounts longer than maxAmountText characters, or whose exponent leaves
// [-maxAmountScale, maxAmountScale], are rejected before any arithmetic.
const (
	maxAmountText  = 32
	maxAmountScale = 32
)

const (
	msgRequired      = "This field is required."
	msgBlank         = "This field may not be blank."
	msgNull          = "This field may not be null."
	msgNotString     = "Not a valid string."
	msgNotNumber     = "A valid number is required."
	msgNotInteger    = "A valid integer is required."
	msgDecimalPlaces = "Ensure that there are no more than 2 decimal places."
)

func msgMaxLength(n int) string {
	return fmt.Sprintf("Ensure this field has no more than %d characters.", n)
}

// fieldErrors maps a request field to its validation messages, rendered
// as {"field": ["message", ...]}.
type fieldErrors map[string][]string

func (e fieldErrors) add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e fieldErrors) has(field string) bool {
	return len(e[field]) > 0
}

// payload is a decoded JSON object whose fields are parsed lazily, so every
// bad field can be reported in one response.
type payload map[string]json.RawMessage

var errBodyNotObject = errors.New("body must be a JSON object")

// decodePayload reads a JSON object from the request body. An empty body
// decodes to an empty payload.
func decodePayload(w http.ResponseWriter, r *http.Request) (payload, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return payload{}, nil
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, errBodyNotObject
		}
		return nil, fmt.Errorf("JSON parse error - %w", err)
	}
	if p == nil {
		return nil, errBodyNotObject
	}
	return p, nil
}

// readPayload decodes the body or writes a 400 and returns false.
func readPayload(w http.ResponseWriter, r *http.Request) (payload, bool) {
	p, err := decodePayload(w, r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return p, true
}

func (p payload) present(key string) bool {
	_, ok := p[key]
	return ok
}

func (p payload) isNull(key string) bool {
	raw, ok := p[key]
	return ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// str returns the trimmed string at key, or nil when the key is absent.
// A null value adds msgNull when nullable is false and yields "" otherwise.
func (p payload) str(key string, nullable bool, errs fieldErrors) *string {
	s := p.text(key, nullable, errs)
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
	return s
}

// text is str without trimming, for secrets.
func (p payload) text(key string, nullable bool, errs fieldErrors) *string {
	raw, ok := p[key]
	if !ok {
		return nil
	}
	if p.isNull(key) {
		if !nullable {
			errs.add(key, msgNull)
			return nil
		}
		empty := ""
		return &empty
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		errs.add(key, msgNotString)
		return nil
	}
	return &s
}

// amount returns the decimal at key, accepting a JSON number or a numeric
// string, or nil when the key is absent.
func (p payload) amount(key string, errs fieldErrors) *decimal.Decimal {
	raw, ok := p[key]
	if !ok {
		return nil
	}
	if p.isNull(key) {
		errs.add(key, msgNull)
		return nil
	}

	text := strings.TrimSpace(string(raw))
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = strings.TrimSpace(s)
	}
	if text == "" || len(text) > maxAmountText {
		errs.add(key, msgNotNumber)
		return nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		errs.add(key, msgNotNumber)
		return nil
	}
	// Rescaling a huge exponent allocates a power of ten of that size.
	if exp := d.Exponent(); exp < -maxAmountScale || exp > maxAmountScale {
		errs.add(key, msgNotNumber)
		return nil
	}
	return &d
}

// id returns a primary key at key, accepting a JSON number or a numeric string.
func (p payload) id(key string, errs fieldErrors) *int64 {
	raw, ok := p[key]
	if !ok || p.isNull(key) {
		return nil
	}

	text := strings.TrimSpace(string(raw))
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = strings.TrimSpace(s)
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		errs.add(key, msgNotInteger)
		return nil
	}
	return &n
}

// integer is id for counts and days, where null is an error.
func (p payload) integer(key string, errs fieldErrors) *int64 {
	if p.isNull(key) {
		errs.add(key, msgNull)
		return nil
	}
	return p.id(key, errs)
}

func checkRange(errs fieldErrors, field string, v *int64, lo, hi int64) {
	if v == nil {
		if !errs.has(field) {
			errs.add(field, msgRequired)
		}
		return
	}
	if *v < lo {
		errs.add(field, fmt.Sprintf("Ensure this value is greater than or equal to %d.", lo))
	} else if *v > hi {
		errs.add(field, fmt.Sprintf("Ensure this value is less than or equal to %d.", hi))
	}
}

// checkTitle validates a required, length-limited text field.
func checkTitle(errs fieldErrors, field string, v *string, required bool, maxLen int) {
	if v == nil {
		if required && !errs.has(field) {
			errs.add(field, msgRequired)
		}
		return
	}
	if *v == "" {
		errs.add(field, msgBlank)
		return
	}
	if utf8.RuneCountInString(*v) > maxLen {
		errs.add(field, msgMaxLength(maxLen))
	}
}

// checkAmount validates a money value. positive demands > 0, otherwise >= 0.
func checkAmount(errs fieldErrors, field string, v *decimal.Decimal, required, positive bool) {
	if v == nil {
		if required && !errs.has(field) {
			errs.add(field, msgRequired)
		}
		return
	}
	switch {
	case positive && !v.IsPositive():
		errs.add(field, "Ensure this value is greater than 0.")
	case !positive && v.IsNegative():
		errs.add(field, "Ensure this value is greater than or equal to 0.")
	}
	if !model.HasAtMostTwoPlaces(*v) {
		errs.add(field, msgDecimalPlaces)
	}
	if v.Abs().GreaterThan(maxAmount) {
		errs.add(field, "Ensure that there are no more than 12 digits before the decimal point.")
	}
}

// maxAmount keeps cent values well inside int64.
var maxAmount = decimal.New(999_999_999_999, 0)
