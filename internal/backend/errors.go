package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Code is an error code reported by the backend in the error body.
type Code string

// Codes the gateway recognizes. Anything else is treated generically.
const (
	CodeMissingProduct  Code = "MISSING_PRODUCT"
	CodeProductRequired Code = "PRODUCT_REQUIRED"
	CodeProductNotFound Code = "PRODUCT_NOT_FOUND"
	CodeTransport       Code = "TRANSPORT"
)

// missingProductCodes all mean "select a product before continuing".
var missingProductCodes = map[Code]bool{
	CodeMissingProduct:  true,
	CodeProductRequired: true,
	CodeProductNotFound: true,
}

// Error is a failed backend call. Status is 0 for transport failures that
// never produced an HTTP response.
type Error struct {
	Status  int
	Code    Code
	// Message is the detail decoded from a JSON error body, empty otherwise.
	Message string
	// Body holds the start of a body that was not JSON, for logs only.
	Body    string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("backend")
	if e.Status != 0 {
		fmt.Fprintf(&b, " status %d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying transport error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsMissingProduct reports whether err is a backend error whose code means
// no product is selected.
func IsMissingProduct(err error) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	return missingProductCodes[Code(strings.ToUpper(string(be.Code)))]
}

// transportError wraps a failure that happened before any response arrived.
func transportError(op string, err error) *Error {
	return &Error{Code: CodeTransport, Message: op, Err: err}
}

// decodeError reads the backend error body. Accepted shapes:
//
//	{"error_code": "...", "detail": "..."}
//	{"code": "...", "message": "..."}
//	{"error": "..."}
//	{"detail": {"error_code": "...", "message": "..."}}
func decodeError(status int, body []byte) *Error {
	e := &Error{Status: status}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		e.Body = snippet(body, maxBodySnippet)
		return e
	}
	fillError(e, fields)
	return e
}

// maxBodySnippet bounds Error.Body.
const maxBodySnippet = 200

// snippet returns the first n bytes of b as trimmed text, cut on a rune boundary.
func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
		for len(b) > 0 && !utf8.Valid(b) {
			b = b[:len(b)-1]
		}
	}
	return strings.TrimSpace(string(b))
}

func fillError(e *Error, fields map[string]json.RawMessage) {
	for _, key := range []string{"error_code", "code"} {
		if s, ok := stringField(fields, key); ok && e.Code == "" {
			e.Code = Code(s)
		}
	}
	for _, key := range []string{"detail", "message", "error"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if s, ok := stringField(fields, key); ok {
			if e.Message == "" {
				e.Message = s
			}
			continue
		}
		var nested map[string]json.RawMessage
		if json.Unmarshal(raw, &nested) == nil {
			fillError(e, nested)
		}
	}
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
