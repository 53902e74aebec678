package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		raw     string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"admin", RoleAdmin, false},
		{" admin ", RoleAdmin, false},
		{"Admin", "", true},
		{"superuser", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseRole(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRole_Satisfies(t *testing.T) {
	assert.True(t, RoleAdmin.Satisfies(RoleAdmin))
	assert.True(t, RoleAdmin.Satisfies(RoleUser))
	assert.True(t, RoleUser.Satisfies(RoleUser))
	assert.False(t, RoleUser.Satisfies(RoleAdmin))
	assert.False(t, Role("owner").Satisfies(RoleUser))
	assert.False(t, RoleAdmin.Satisfies(Role("owner")))
}

func TestNewUser(t *testing.T) {
	user := NewUser("dev@example.com", RoleUser)

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "dev@example.com", user.Email)
	assert.Equal(t, RoleUser, user.Role)
	assert.False(t, user.IsAdmin())
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)
	assert.Equal(t, "users", user.TableName())
}

func TestUser_Identity(t *testing.T) {
	user := NewUser("admin@example.com", RoleAdmin)
	identity := user.Identity()

	assert.Equal(t, user.ID.String(), identity.ID)
	assert.Equal(t, "admin@example.com", identity.Email)
	assert.True(t, identity.IsAdmin())

	var nilIdentity *Identity
	assert.False(t, nilIdentity.IsAdmin())
}

func TestMigrationReport_Record(t *testing.T) {
	report := NewMigrationReport(time.Now())

	report.Record(MigrationResult{Name: "a", Source: MigrationSourceDatabase, Outcome: MigrationMigrated})
	report.Record(MigrationResult{Name: "b", Source: MigrationSourceEnv, Outcome: MigrationAlreadyPresent})
	report.Record(MigrationResult{Name: "c", Source: MigrationSourceDatabase, Outcome: MigrationFailed, Error: "boom"})

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Migrated)
	assert.Equal(t, 1, report.AlreadyPresent)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, report.PartialFailure())
	assert.Len(t, report.Results, 3)
}

func TestSecret_JSONOmitsValue(t *testing.T) {
	data, err := json.Marshal(Secret{Name: "openai-api-key", Value: "sk-live", ContentType: "text/plain"})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "sk-live")
	assert.Contains(t, string(data), `"secretName":"openai-api-key"`)
}

func TestLegacySecret_IsMigrated(t *testing.T) {
	row := LegacySecret{Name: "x", Value: "y"}
	assert.False(t, row.IsMigrated())
	assert.Equal(t, "app_secrets", row.TableName())

	now := time.Now()
	row.MigratedAt = &now
	assert.True(t, row.IsMigrated())
}

func TestAuditLog_Builder(t *testing.T) {
	identity := &Identity{ID: "id-1", Email: "admin@example.com", Role: RoleAdmin}

	entry := NewAuditLog(AuditActionSecretCreated, "secret", "openai-api-key").
		WithActor(identity).
		WithRequest("req-1").
		WithDetails(map[string]string{"content_type": "text/plain"})

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, "admin@example.com", entry.ActorEmail)
	assert.Equal(t, "id-1", entry.ActorID)
	assert.Equal(t, "req-1", entry.RequestID)
	assert.Equal(t, AuditOutcomeSuccess, entry.Outcome)
	assert.JSONEq(t, `{"content_type":"text/plain"}`, string(entry.Details))

	entry.WithError(errors.New("vault down"))
	assert.Equal(t, AuditOutcomeFailure, entry.Outcome)
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "vault down", *entry.ErrorMessage)
}
