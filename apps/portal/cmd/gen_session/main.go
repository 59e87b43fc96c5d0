// Command gen_session prints a signed portal session token for local testing.
// Set it as the portal session cookie to act as the given user.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

func main() {
	email := flag.String("email", "admin@example.com", "session email")
	role := flag.String("role", "admin", "session role (admin or citizen)")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("APP_SIGNING_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "APP_SIGNING_SECRET is not set")
		os.Exit(1)
	}
	if *role != "admin" && *role != "citizen" {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   "local-" + *role,
		"email": *email,
		"role":  *role,
		"iat":   now.Unix(),
		"exp":   now.Add(*ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(signedToken)
}
