package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	token, err := GenerateToken("user-1", "a@example.com", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := ValidateToken(token, "secret")
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	good, _ := GenerateToken("user-1", "", "secret", time.Hour)
	expired, _ := GenerateToken("user-1", "", "secret", -time.Minute)
	anonymous, _ := GenerateToken("", "", "secret", time.Hour)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", good, "other"},
		{"expired", expired, "secret"},
		{"no user", anonymous, "secret"},
		{"garbage", "not-a-token", "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(tt.token, tt.secret); err == nil {
				t.Error("expected error")
			}
		})
	}
}
