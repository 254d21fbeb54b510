package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-jwt-secret-32bytes-long!!!!"

func TestHMACTokenService_IssueAndVerify(t *testing.T) {
	svc := NewHMACTokenService(testSecret, time.Hour)

	token, err := svc.Issue(42)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	memberID, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if memberID != 42 {
		t.Errorf("memberID = %d, want 42", memberID)
	}
}

func TestHMACTokenService_Verify_WrongSecret(t *testing.T) {
	issuer := NewHMACTokenService("another-secret-another-secret!!!", time.Hour)
	verifier := NewHMACTokenService(testSecret, time.Hour)

	token, err := issuer.Issue(1)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestHMACTokenService_Verify_Expired(t *testing.T) {
	svc := NewHMACTokenService(testSecret, time.Minute)
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	token, err := svc.Issue(1)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	svc.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestHMACTokenService_Verify_RejectsOtherAlgorithms(t *testing.T) {
	svc := NewHMACTokenService(testSecret, time.Hour)

	claims := MemberClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := svc.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestHMACTokenService_Verify_InvalidSubject(t *testing.T) {
	svc := NewHMACTokenService(testSecret, time.Hour)

	tests := []struct {
		name    string
		subject string
	}{
		{"non numeric", "alice"},
		{"zero", "0"},
		{"negative", "-5"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := MemberClaims{RegisteredClaims: jwt.RegisteredClaims{
				Subject:   tt.subject,
				Issuer:    tokenIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}}
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
			if err != nil {
				t.Fatalf("failed to sign token: %v", err)
			}

			if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestHMACTokenService_Verify_Garbage(t *testing.T) {
	svc := NewHMACTokenService(testSecret, time.Hour)

	if _, err := svc.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
