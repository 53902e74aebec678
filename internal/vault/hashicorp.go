package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/models"
)

const (
	defaultMountPath = "secret"
	appRoleMountPath = "approle"
	fieldValue       = "value"
	fieldContentType = "content_type"
)

// HashiCorpClient stores each secret as a KV v2 entry {value, content_type}
// under <mount>/data/<name>.
type HashiCorpClient struct {
	initMu sync.Mutex // serializes Initialize

	mu      sync.RWMutex
	client  *api.Client
	mount   string
	address string

	logger *zap.Logger
}

// NewHashiCorpClient creates an uninitialized client
func NewHashiCorpClient(logger *zap.Logger) *HashiCorpClient {
	return &HashiCorpClient{logger: logger}
}

// Initialize connects, authenticates and health-checks a new underlying client.
// The previous client stays in place unless every step succeeds.
func (c *HashiCorpClient) Initialize(ctx context.Context, cfg Config) error {
	if cfg.URL == "" {
		return fmt.Errorf("%w: vault URL is required", shared.ErrInvalidInput)
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()

	apiCfg := api.DefaultConfig()
	if apiCfg.Error != nil {
		return fmt.Errorf("failed to load vault defaults: %w", apiCfg.Error)
	}
	apiCfg.Address = cfg.URL
	if cfg.Timeout > 0 {
		apiCfg.Timeout = cfg.Timeout
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return fmt.Errorf("failed to create vault client: %w", err)
	}
	client.ClearToken()
	if cfg.TenantID != "" {
		client.SetNamespace(cfg.TenantID)
	}

	switch {
	case cfg.ClientID != "" && cfg.ClientSecret != "":
		if err := authenticateAppRole(ctx, client, cfg.ClientID, cfg.ClientSecret); err != nil {
			return err
		}
	case cfg.Token != "":
		client.SetToken(cfg.Token)
	default:
		return fmt.Errorf("%w: vault credentials are required (AppRole client id/secret or token)", shared.ErrInvalidInput)
	}

	health, err := client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !health.Initialized || health.Sealed {
		return fmt.Errorf("vault at %s is not ready (initialized=%t sealed=%t)", cfg.URL, health.Initialized, health.Sealed)
	}

	mount := strings.Trim(cfg.MountPath, "/")
	if mount == "" {
		mount = defaultMountPath
	}

	c.mu.Lock()
	c.client = client
	c.mount = mount
	c.address = cfg.URL
	c.mu.Unlock()

	c.logger.Info("vault client initialized",
		zap.String("address", cfg.URL),
		zap.String("namespace", cfg.TenantID),
		zap.String("mount", mount),
		zap.String("version", health.Version))
	return nil
}

func authenticateAppRole(ctx context.Context, client *api.Client, roleID, secretID string) error {
	path := fmt.Sprintf("auth/%s/login", appRoleMountPath)
	secret, err := client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return fmt.Errorf("approle auth failed: %w", err)
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return errors.New("approle auth returned no token")
	}
	client.SetToken(secret.Auth.ClientToken)
	return nil
}

// IsInitialized reports whether Initialize has succeeded at least once
func (c *HashiCorpClient) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

// Address returns the URL of the current vault, or "" before initialization
func (c *HashiCorpClient) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

func (c *HashiCorpClient) current() (*api.Client, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, "", ErrNotInitialized
	}
	return c.client, c.mount, nil
}

// ListSecrets returns the names stored under the mount
func (c *HashiCorpClient) ListSecrets(ctx context.Context) ([]string, error) {
	client, mount, err := c.current()
	if err != nil {
		return nil, err
	}

	secret, err := client.Logical().ListWithContext(ctx, mount+"/metadata/")
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return []string{}, nil
	}

	raw, _ := secret.Data["keys"].([]interface{})
	names := make([]string, 0, len(raw))
	for _, k := range raw {
		name, ok := k.(string)
		if !ok || strings.HasSuffix(name, "/") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// SecretExists reports whether a live version of name exists
func (c *HashiCorpClient) SecretExists(ctx context.Context, name string) (bool, error) {
	_, err := c.GetSecret(ctx, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, shared.ErrSecretNotFound) {
		return false, nil
	}
	return false, err
}

// GetSecret reads the latest version of name
func (c *HashiCorpClient) GetSecret(ctx context.Context, name string) (*models.Secret, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	client, mount, err := c.current()
	if err != nil {
		return nil, err
	}

	secret, err := client.Logical().ReadWithContext(ctx, dataPath(mount, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, notFound(name)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		// soft-deleted or destroyed version
		return nil, notFound(name)
	}

	value, _ := data[fieldValue].(string)
	contentType, _ := data[fieldContentType].(string)
	return &models.Secret{Name: name, Value: value, ContentType: contentType}, nil
}

// SetSecret writes a new version of name, creating it if needed
func (c *HashiCorpClient) SetSecret(ctx context.Context, name, value, contentType string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return c.write(ctx, name, value, contentType, nil)
}

// CreateSecret writes the first version of name with check-and-set 0, so
// Vault rejects the write if any version already exists
func (c *HashiCorpClient) CreateSecret(ctx context.Context, name, value, contentType string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := c.write(ctx, name, value, contentType, map[string]interface{}{"cas": 0})
	if isCASMismatch(err) {
		return alreadyExists(name)
	}
	return err
}

// UpdateSecret writes a new version of an existing secret. An empty
// contentType keeps the current one.
func (c *HashiCorpClient) UpdateSecret(ctx context.Context, name, value, contentType string) error {
	existing, err := c.GetSecret(ctx, name)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = existing.ContentType
	}
	return c.write(ctx, name, value, contentType, nil)
}

func (c *HashiCorpClient) write(ctx context.Context, name, value, contentType string, options map[string]interface{}) error {
	client, mount, err := c.current()
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			fieldValue:       value,
			fieldContentType: contentType,
		},
	}
	if options != nil {
		payload["options"] = options
	}
	if _, err := client.Logical().WriteWithContext(ctx, dataPath(mount, name), payload); err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}
	return nil
}

// DeleteSecret removes every version and the metadata of name
func (c *HashiCorpClient) DeleteSecret(ctx context.Context, name string) error {
	exists, err := c.SecretExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return notFound(name)
	}

	client, mount, err := c.current()
	if err != nil {
		return err
	}
	if _, err := client.Logical().DeleteWithContext(ctx, metadataPath(mount, name)); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

// isCASMismatch matches the 400 KV v2 answers when a check-and-set write
// finds a different current version
func isCASMismatch(err error) bool {
	var respErr *api.ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	for _, msg := range respErr.Errors {
		if strings.Contains(msg, "check-and-set") {
			return true
		}
	}
	return false
}

func dataPath(mount, name string) string {
	return mount + "/data/" + name
}

func metadataPath(mount, name string) string {
	return mount + "/metadata/" + name
}
