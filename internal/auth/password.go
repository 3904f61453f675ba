package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32

	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
	bcryptCost        = 10
)

// normalizeUsername trims username and checks it is 3-32 letters, digits, '-', '_' or '.'.
func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if n := len(username); n < minUsernameLength || n > maxUsernameLength {
		return "", ErrInvalidUsername
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("-_.", r) {
			return "", ErrInvalidUsername
		}
	}
	return username, nil
}

func checkPassword(password string) error {
	if n := len(password); n < minPasswordLength || n > maxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

// HashPassword validates and hashes a new password.
func HashPassword(password string) (string, error) {
	if err := checkPassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword reports whether password matches the stored hash.
func ComparePassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}
