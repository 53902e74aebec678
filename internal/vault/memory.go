package vault

import (
	"context"
	"sort"
	"sync"

	"github.com/upb/authvault/models"
)

const memoryAddress = "memory://local"

// MemoryClient keeps secrets in process memory. It backs VAULT_DRIVER=memory
// for local runs and is used by tests.
type MemoryClient struct {
	mu          sync.RWMutex
	initialized bool
	address     string
	secrets     map[string]models.Secret
}

// NewMemoryClient creates an empty, uninitialized in-memory vault
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{secrets: make(map[string]models.Secret)}
}

// Initialize marks the client ready. Stored secrets survive re-initialization.
func (c *MemoryClient) Initialize(_ context.Context, cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.initialized = true
	c.address = cfg.URL
	if c.address == "" {
		c.address = memoryAddress
	}
	return nil
}

func (c *MemoryClient) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

func (c *MemoryClient) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

func (c *MemoryClient) ListSecrets(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return nil, ErrNotInitialized
	}

	names := make([]string, 0, len(c.secrets))
	for name := range c.secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *MemoryClient) SecretExists(ctx context.Context, name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return false, ErrNotInitialized
	}
	_, ok := c.secrets[name]
	return ok, nil
}

func (c *MemoryClient) GetSecret(ctx context.Context, name string) (*models.Secret, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	secret, ok := c.secrets[name]
	if !ok {
		return nil, notFound(name)
	}
	return &secret, nil
}

func (c *MemoryClient) SetSecret(ctx context.Context, name, value, contentType string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	c.secrets[name] = models.Secret{Name: name, Value: value, ContentType: contentType}
	return nil
}

// CreateSecret inserts name only if it is absent, checked under the write lock
func (c *MemoryClient) CreateSecret(ctx context.Context, name, value, contentType string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	if _, ok := c.secrets[name]; ok {
		return alreadyExists(name)
	}
	c.secrets[name] = models.Secret{Name: name, Value: value, ContentType: contentType}
	return nil
}

func (c *MemoryClient) UpdateSecret(ctx context.Context, name, value, contentType string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	existing, ok := c.secrets[name]
	if !ok {
		return notFound(name)
	}
	if contentType == "" {
		contentType = existing.ContentType
	}
	c.secrets[name] = models.Secret{Name: name, Value: value, ContentType: contentType}
	return nil
}

func (c *MemoryClient) DeleteSecret(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	if _, ok := c.secrets[name]; !ok {
		return notFound(name)
	}
	delete(c.secrets, name)
	return nil
}
