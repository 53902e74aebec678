// Package main mints bearer tokens for local testing and service accounts.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/upb/authvault/internal/auth"
	"github.com/upb/authvault/models"
	"github.com/upb/authvault/utils"
)

func main() {
	_ = godotenv.Load(".env")
	os.Exit(run(os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

func run(args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gentoken", flag.ContinueOnError)
	fs.SetOutput(stderr)
	userID := fs.String("id", "", "User ID (UUID) for the token; random when empty")
	email := fs.String("email", "admin@localhost.localdomain", "Email for the token")
	role := fs.String("role", string(models.RoleAdmin), "Role for the token (user or admin)")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	secret := fs.String("secret", "", "JWT secret (or set JWT_SECRET env var)")
	issuer := fs.String("issuer", "", "Token issuer (or set JWT_ISSUER env var)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	jwtSecret := *secret
	if jwtSecret == "" {
		jwtSecret = getenv("JWT_SECRET")
	}
	if jwtSecret == "" {
		fmt.Fprintln(stderr, "Error: JWT secret required. Use -secret flag or set JWT_SECRET env var")
		return 1
	}

	tokenIssuer := *issuer
	if tokenIssuer == "" {
		tokenIssuer = getenv("JWT_ISSUER")
	}
	if tokenIssuer == "" {
		tokenIssuer = "authvault"
	}

	id := *userID
	if id == "" {
		id = uuid.NewString()
	}
	if err := utils.ValidateUUID(id); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := utils.ValidateEmail(*email); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	parsedRole, err := models.ParseRole(*role)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:     []byte(jwtSecret),
		Issuer:     tokenIssuer,
		DefaultTTL: *ttl,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	token, err := codec.Issue(models.Identity{ID: id, Email: *email, Role: parsedRole}, *ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error generating token: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, token)
	return 0
}
