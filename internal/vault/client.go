// Package vault is the contract over the remote secret store plus its
// HashiCorp Vault (KV v2) and in-memory implementations.
package vault

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/models"
)

// Config identifies and authenticates against a vault.
// TenantID maps to the vault namespace; ClientID/ClientSecret are an AppRole
// role_id/secret_id pair. Token is used when no AppRole pair is given.
type Config struct {
	URL          string
	TenantID     string
	ClientID     string
	ClientSecret string
	Token        string
	MountPath    string
	Timeout      time.Duration
}

// Client is the operation contract the secret broker relies on.
// GetSecret, UpdateSecret and DeleteSecret fail with shared.ErrSecretNotFound
// for unknown names. CreateSecret writes only when name has no entry yet and
// fails with ErrAlreadyExists otherwise.
type Client interface {
	Initialize(ctx context.Context, cfg Config) error
	IsInitialized() bool
	Address() string
	ListSecrets(ctx context.Context) ([]string, error)
	SecretExists(ctx context.Context, name string) (bool, error)
	GetSecret(ctx context.Context, name string) (*models.Secret, error)
	SetSecret(ctx context.Context, name, value, contentType string) error
	CreateSecret(ctx context.Context, name, value, contentType string) error
	UpdateSecret(ctx context.Context, name, value, contentType string) error
	DeleteSecret(ctx context.Context, name string) error
}

// ErrNotInitialized is returned by operations on a client that has not been initialized
var ErrNotInitialized = errors.New("vault client is not initialized")

// ErrAlreadyExists is returned by CreateSecret when the name is taken
var ErrAlreadyExists = errors.New("secret already exists")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,126}$`)

// ValidateName rejects names that cannot be used as a single KV path segment
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: secret name %q must be 1-127 characters of letters, digits, '.', '_' or '-'", shared.ErrInvalidInput, name)
	}
	return nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", shared.ErrSecretNotFound, name)
}

func alreadyExists(name string) error {
	return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
}
