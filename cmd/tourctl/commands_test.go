package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Domenick1991/tourbooking/internal/auth"
	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestTokenCmd(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: memory\nauth:\n  jwt_secret: cli-secret\n")

	out := &bytes.Buffer{}
	root := newRootCmd()
	root.SetOut(out)
	root.SetArgs([]string{"--config", path, "token", "--type", "AGENCY", "--id", "a1"})
	require.NoError(t, root.Execute())

	party, err := auth.NewVerifier("cli-secret", "tourbooking").Authenticate(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, domain.Agency("a1"), party)
}

func TestTokenCmd_BadPartyType(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: memory\nauth:\n  jwt_secret: cli-secret\n")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", path, "token", "--type", "ADMIN", "--id", "x"})

	assert.ErrorIs(t, root.Execute(), domain.ErrInvalidInput)
}

func TestAuditCmd_MemoryStoreIsBalanced(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: memory\nauth:\n  jwt_secret: cli-secret\nlog:\n  level: error\n")

	out := &bytes.Buffer{}
	root := newRootCmd()
	root.SetOut(out)
	root.SetArgs([]string{"--config", path, "audit"})

	require.NoError(t, root.Execute())
	assert.Empty(t, out.String())
}

func TestMigrateCmd_RequiresPostgres(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: memory\nauth:\n  jwt_secret: cli-secret\n")

	root := newRootCmd()
	root.SetArgs([]string{"--config", path, "migrate"})

	assert.Error(t, root.Execute())
}
