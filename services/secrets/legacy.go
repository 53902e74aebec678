package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// maxLegacyValueSize bounds a decrypted legacy value
const maxLegacyValueSize = 1 << 20

// LegacyDecryptor opens app_secrets values. Rows written by the old
// deployment tooling are either plaintext or ASCII-armored age files.
type LegacyDecryptor struct {
	identities []age.Identity
}

// NewLegacyDecryptor parses identity (one or more AGE-SECRET-KEY lines). An
// empty identity yields a decryptor that only accepts plaintext rows.
func NewLegacyDecryptor(identity string) (*LegacyDecryptor, error) {
	if strings.TrimSpace(identity) == "" {
		return &LegacyDecryptor{}, nil
	}
	ids, err := age.ParseIdentities(strings.NewReader(identity))
	if err != nil {
		return nil, fmt.Errorf("invalid legacy secrets age identity: %w", err)
	}
	return &LegacyDecryptor{identities: ids}, nil
}

// IsEncrypted reports whether value is an armored age file
func IsEncrypted(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), armor.Header)
}

// Decrypt returns plaintext values unchanged and decrypts armored ones
func (d *LegacyDecryptor) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	if d == nil || len(d.identities) == 0 {
		return "", errors.New("legacy value is age-encrypted but no identity is configured")
	}

	r, err := age.Decrypt(armor.NewReader(strings.NewReader(strings.TrimSpace(value)+"\n")), d.identities...)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt legacy value: %w", err)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxLegacyValueSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read legacy value: %w", err)
	}
	if n > maxLegacyValueSize {
		return "", errors.New("legacy value exceeds size limit")
	}
	return buf.String(), nil
}
