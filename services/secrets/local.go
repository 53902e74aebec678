package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/models"
)

// LocalSource reads secrets from process configuration. It is the
// authoritative source while the vault is not configured.
type LocalSource struct {
	lookup func(string) (string, bool)
}

// NewEnvSource reads from the process environment
func NewEnvSource() *LocalSource {
	return &LocalSource{lookup: os.LookupEnv}
}

// NewMapSource reads from a fixed map, keyed by environment variable name
func NewMapSource(values map[string]string) *LocalSource {
	return &LocalSource{lookup: func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}}
}

// EnvName maps a secret name to its variable, e.g. openai-api-key -> OPENAI_API_KEY
func EnvName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// Get returns the secret, or shared.ErrSecretNotFound when the variable is unset or empty
func (s *LocalSource) Get(name string) (*models.Secret, error) {
	value, ok := s.lookup(EnvName(name))
	if !ok || value == "" {
		return nil, fmt.Errorf("%w: %s", shared.ErrSecretNotFound, name)
	}
	return &models.Secret{Name: name, Value: value}, nil
}
