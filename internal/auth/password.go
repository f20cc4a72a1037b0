package auth

import "golang.org/x/crypto/bcrypt"

const bcryptCost = 12

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func VerifyPassword(encoded, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(pw)) == nil
}
