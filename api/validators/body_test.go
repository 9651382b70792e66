package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
)

type signupBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func decode(t *testing.T, payload string) error {
	t.Helper()
	r := httptest.NewRequest("POST", "/", strings.NewReader(payload))
	var body signupBody
	return DecodeJSONBody(r, &body)
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	if err := decode(t, `{"email":"a@example.com","password":"longenough"}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"garbage", `{"email":`},
		{"unknown field", `{"email":"a@example.com","password":"longenough","extra":1}`},
		{"trailing data", `{"email":"a@example.com","password":"longenough"}{"again":true}`},
		{"empty body", ``},
		{"wrong shape", `[1,2,3]`},
	}
	for _, tc := range cases {
		if err := decode(t, tc.payload); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	err := decode(t, `{"email":"not-an-email","password":"short"}`)
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected classified error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %#v", typed.Details())
	}
	if details["email"] != "must be a valid email" {
		t.Fatalf("email detail = %q", details["email"])
	}
	if details["password"] != "must be at least 8" {
		t.Fatalf("password detail = %q", details["password"])
	}
}

func TestSanitizeStringKeepsRunesWhole(t *testing.T) {
	if got := SanitizeString("  plain  ", 10); got != "plain" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeString("abcdef", 4); got != "abcd" {
		t.Fatalf("got %q", got)
	}
	// "é" is two bytes; a byte cap of 3 must not leave half of it behind.
	if got := SanitizeString("abécd", 3); got != "ab" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeString("abc", 0); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
