package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kurodrive/internal/auth"
	"kurodrive/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setTestEnv(t *testing.T) {
	t.Setenv("KURODRIVE_AUTH_SECRET", testSecret)
	t.Setenv("KURODRIVE_METADATA_TYPE", "badger")
	t.Setenv("KURODRIVE_BLOB_TYPE", "localfs")
	t.Setenv("KURODRIVE_BLOB_LOCALFS_ROOT", t.TempDir())
	t.Setenv("KURODRIVE_LOGGING_FORMAT", "json")
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "token"})
}

func TestTokenCommand(t *testing.T) {
	setTestEnv(t)

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--user", "u1", "--name", "Una", "--admin"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	tokens := auth.NewTokens(auth.Config{Secret: testSecret, TokenTTL: time.Hour})
	p, err := tokens.ParseToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, domain.Principal{UserID: "u1", Name: "Una", Role: domain.RoleAdmin}, p)
}

func TestTokenCommand_RequiresUser(t *testing.T) {
	setTestEnv(t)

	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token"})
	assert.Error(t, root.ExecuteContext(context.Background()))
}

func TestServe_StopsOnCancel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("KURODRIVE_SERVER_ADDR", "127.0.0.1:0")
	t.Setenv("KURODRIVE_METRICS_ENABLED", "false")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		root := NewRootCommand()
		root.SetArgs([]string{"serve"})
		done <- root.ExecuteContext(ctx)
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}
