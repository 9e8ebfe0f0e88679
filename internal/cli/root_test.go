package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pot-code/learnsync/internal/feed"
	infra "github.com/pot-code/learnsync/internal/infrastructure"
	"github.com/pot-code/learnsync/internal/infrastructure/auth"
	"github.com/pot-code/learnsync/internal/infrastructure/uuid"
	ihttp "github.com/pot-code/learnsync/internal/interfaces/http"
	"github.com/pot-code/learnsync/internal/progress"
	"github.com/pot-code/learnsync/internal/syncclient"
	"github.com/pot-code/learnsync/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) *httptest.Server {
	users := user.NewUserUseCase(user.NewUserMemory(), uuid.NewNanoIDGenerator(12))
	require.NoError(t, users.Seed(context.Background(), []string{"alice"}))
	hub := feed.NewHub(uuid.NewNanoIDGenerator(12), nil, "")
	uc := progress.NewProgressUseCase(progress.NewMemoryRepository(4), users, progress.NewKeyLock(8), hub)

	option := &infra.AppConfig{Env: infra.EnvProduction, RequestTimeout: 5 * time.Second}
	app := ihttp.NewServer(option, &ihttp.Dependencies{
		ProgressUseCase: uc,
		UserUseCase:     users,
		Hub:             hub,
	}, zap.NewNop())
	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, string, error) {
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"pull", "complete", "reset", "show", "resend", "token"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestRootCommand_RequiresUser(t *testing.T) {
	_, _, err := execute(t, "show", "--db", filepath.Join(t.TempDir(), "local.db"))
	assert.EqualError(t, err, "--user is required")

	_, _, err = execute(t, "show", "-u", "alice", "--format", "yaml")
	assert.Error(t, err)
}

func TestCompletePullAndReset(t *testing.T) {
	srv := newService(t)
	db := filepath.Join(t.TempDir(), "local.db")
	base := []string{"--server", srv.URL, "--db", db, "-u", "alice", "--format", "json"}

	out, _, err := execute(t, append([]string{"complete", "1", "1-1", "1-2"}, base...)...)
	require.NoError(t, err)
	var records []*syncclient.LocalRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, []string{"1-1", "1-2"}, records[0].CompletedItems.Slice())
	assert.False(t, records[0].Pending)

	// a second profile on the same machine starts empty and pulls from the server
	out, _, err = execute(t, append([]string{"pull", "--profile", "tablet"}, base...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].CompletedItems.Len())

	out, _, err = execute(t, append([]string{"reset", "1"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "course 1 reset")

	out, _, err = execute(t, append([]string{"show"}, base...)...)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestComplete_OfflineKeepsPending(t *testing.T) {
	srv := newService(t)
	url := srv.URL
	srv.Close()
	db := filepath.Join(t.TempDir(), "local.db")
	base := []string{"--server", url, "--db", db, "-u", "alice", "--timeout", "500ms"}

	out, _, err := execute(t, append([]string{"complete", "1", "1-1"}, base...)...)
	require.Error(t, err)
	assert.Contains(t, out, "pending")

	out, _, err = execute(t, append([]string{"show"}, base...)...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "1\tmodule=1\tpending\t1-1"), out)

	_, stderr, err := execute(t, append([]string{"reset", "1"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "warning:")
}

func TestTokenCommand(t *testing.T) {
	_, _, err := execute(t, "token", "-u", "alice")
	assert.Error(t, err)

	out, _, err := execute(t, "token", "-u", "alice", "--secret", "s3cret", "--method", "HS512")
	require.NoError(t, err)
	claims, err := auth.NewJWTUtil("HS512", "s3cret", "", time.Hour).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Name)
}
