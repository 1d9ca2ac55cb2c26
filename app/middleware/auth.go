package appMiddleware

import (
	"os"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const UserIDKey contextKey = "userID"
const UserRoleKey contextKey = "userRole"

// Claims are the custom claims carried by tokens the main app issues. This
// service only validates them; it never mints tokens.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

var JwtSecretKey = jwtSecret()

func jwtSecret() []byte {
	if secret := os.Getenv("JWT_SECRET_KEY"); secret != "" {
		return []byte(secret)
	}
	// Dev-only default; production must set JWT_SECRET_KEY.
	return []byte("dev-only-insecure-secret")
}
