package utils

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost   = 12
	MinKeyLength = 12
)

func HashEnrollmentKey(key string) (string, error) {
	if len(key) < MinKeyLength {
		return "", fmt.Errorf("enrollment key must be at least %d characters long", MinKeyLength)
	}
	hashedKey, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashedKey), nil
}

func CheckEnrollmentKey(hashedKey string, key string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(key))
	return err == nil
}
