package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/change-service/internal/auth"
	"github.com/spec-kit/change-service/internal/config"
)

func TestParseScores(t *testing.T) {
	scores, err := parseScores([]string{"business=90", " technical = 80.5 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"business": 90, "technical": 80.5}, scores)

	for _, bad := range []string{"business", "=5", "user=abc", "user=101", "user=NaN", "user=Inf", "user=-inf"} {
		_, err := parseScores([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")
	t.Setenv("AUTH_ISSUER", "changectl-test")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--subject", "alice", "--org", "acme", "--role", "change-admin"})
	require.NoError(t, cmd.Execute())

	var issued issuedToken
	require.NoError(t, json.Unmarshal(out.Bytes(), &issued))

	claims, err := auth.NewTokenManager(config.AuthConfig{JWTSecret: "cli-secret", Issuer: "changectl-test"}).ParseToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "acme", claims.OrgID)
	assert.Equal(t, []string{"change-admin"}, claims.Roles)
}

func TestTokenCommandRequiresSubject(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--org", "acme"})
	assert.ErrorContains(t, cmd.Execute(), "--subject and --org are required")
}

func TestSeedCommandAppliesExampleFile(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"seed", "--file", "../../configs/seed.example.yaml"})
	require.NoError(t, cmd.Execute())

	var result struct{ Created, Updated int }
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 7, result.Created)
}
