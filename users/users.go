package users

import (
	"fmt"
	"unicode"
)

// RoleType represents a user's role as reported by the identity service
type RoleType string

const (
	RoleAnalyst       RoleType = "analyst"        // Regular analyst, default role
	RoleSeniorAnalyst RoleType = "senior_analyst" // Analyst with escalation rights
	RoleManager       RoleType = "manager"        // Manages a department of analysts
	RoleAdmin         RoleType = "admin"          // Full administrative access
)

// IsValid reports whether the role is one the client knows about.
func (r RoleType) IsValid() bool {
	switch r {
	case RoleAnalyst, RoleSeniorAnalyst, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Profile holds the identity attributes cached alongside the token pair.
// Field names match the identity service's user_info payload.
type Profile struct {
	ID          string   `json:"id"`                   // Unique identifier for the user
	Username    string   `json:"username"`             // Unique login name
	DisplayName string   `json:"display_name"`         // Name shown in the UI
	Email       string   `json:"email"`                // User's email address
	Role        RoleType `json:"role"`                 // Role granted by the identity service
	Department  string   `json:"department,omitempty"` // Optional organisational unit
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}
