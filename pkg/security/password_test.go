package security_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jordanmaier/copperline-backend/pkg/config"
	"github.com/jordanmaier/copperline-backend/pkg/security"
)

var hashCfg = config.PasswordConfig{
	ArgonMemoryKB:    32768,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", hashCfg)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash shape %q", hash)
	}

	ok, err := security.VerifyPassword("very-secure-password", hash)
	if err != nil || !ok {
		t.Fatalf("correct password rejected: ok=%v err=%v", ok, err)
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if ok {
		t.Fatal("wrong password accepted")
	}
}

func TestHashPasswordSaltsEachHash(t *testing.T) {
	first, err := security.HashPassword("same-password", hashCfg)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	second, err := security.HashPassword("same-password", hashCfg)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestHashPasswordClampsEmptyConfig(t *testing.T) {
	hash, err := security.HashPassword("zero-config", config.PasswordConfig{})
	if err != nil {
		t.Fatalf("HashPassword with zero config: %v", err)
	}
	if ok, err := security.VerifyPassword("zero-config", hash); err != nil || !ok {
		t.Fatalf("round trip under clamped params failed: ok=%v err=%v", ok, err)
	}
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	cases := []struct {
		name    string
		encoded string
	}{
		{"not a hash", "not-a-hash"},
		{"wrong algorithm", "$argon2i$v=19$m=8,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA"},
		{"leading garbage", "x$argon2id$v=19$m=8,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA"},
		{"zero memory", "$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA"},
		{"broken base64", "$argon2id$v=19$m=8,t=1,p=1$!!!$aGFzaGhhc2hoYXNoaGFzaA"},
	}
	for _, tc := range cases {
		if _, err := security.VerifyPassword("irrelevant", tc.encoded); !errors.Is(err, security.ErrInvalidHash) {
			t.Fatalf("%s: got %v, want ErrInvalidHash", tc.name, err)
		}
	}
}

func TestVerifyPasswordRejectsForeignVersion(t *testing.T) {
	encoded := "$argon2id$v=18$m=8,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA"
	if _, err := security.VerifyPassword("irrelevant", encoded); !errors.Is(err, security.ErrIncompatibleVersion) {
		t.Fatalf("got %v, want ErrIncompatibleVersion", err)
	}
}
