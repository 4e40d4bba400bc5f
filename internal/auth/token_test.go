package auth

import (
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, "helpdesk")
	role := domain.StaffRoleAdmin

	token, exp, err := tm.GenerateToken("staff-1", domain.SubjectTypeStaff, &role)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if exp.Before(time.Now()) {
		t.Errorf("expiry %v is in the past", exp)
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.SubjectID() != "staff-1" {
		t.Errorf("SubjectID = %q, want %q", claims.SubjectID(), "staff-1")
	}
	if claims.Subject != domain.SubjectTypeStaff {
		t.Errorf("Subject = %q, want %q", claims.Subject, domain.SubjectTypeStaff)
	}
	if claims.Role == nil || *claims.Role != domain.StaffRoleAdmin {
		t.Errorf("Role = %v, want ADMIN", claims.Role)
	}
}

func TestTokenManager_Rejects(t *testing.T) {
	issuer := NewTokenManager("secret", time.Hour, "helpdesk")
	token, _, err := issuer.GenerateToken("user-1", domain.SubjectTypeUser, nil)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	expired := NewTokenManager("secret", time.Hour, "helpdesk")
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	tests := []struct {
		name string
		tm   *TokenManager
	}{
		{"wrong secret", NewTokenManager("other", time.Hour, "helpdesk")},
		{"wrong issuer", NewTokenManager("secret", time.Hour, "someone-else")},
		{"expired", expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.tm.ParseToken(token); err == nil {
				t.Error("expected ParseToken to fail")
			}
		})
	}
}

func TestHashPassword(t *testing.T) {
	if _, err := HashPassword("short", 4); err != ErrWeakPassword {
		t.Errorf("err = %v, want ErrWeakPassword", err)
	}

	hash, err := HashPassword("correct horse", 4)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if err := ComparePassword(hash, "correct horse"); err != nil {
		t.Errorf("ComparePassword rejected the right password: %v", err)
	}
	if err := ComparePassword(hash, "battery staple"); err == nil {
		t.Error("ComparePassword accepted the wrong password")
	}
}
