package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyboard/internal/adapter/sqlitestore"
	"storyboard/internal/batch"
	"storyboard/internal/domain"
	"storyboard/internal/illustration"
	"storyboard/internal/providers/image"
	"storyboard/internal/providers/prompt"
	"storyboard/internal/storage"
)

func newTestRuntime(t *testing.T) (opener, *sqlitestore.ScriptStore) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	db, err := sqlitestore.Open(ctx, filepath.Join(dir, "jobctl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	files, err := storage.NewFileStore(filepath.Join(dir, "assets"), "http://localhost/static")
	require.NoError(t, err)
	logger := zerolog.Nop()
	scripts := sqlitestore.NewScriptStore(db)
	manager := batch.NewManager(batch.Deps{
		Jobs:        sqlitestore.NewJobStore(db),
		Scripts:     scripts,
		Illustrator: illustration.New(image.NewRegistry(image.NewSyntheticGenerator()), prompt.NewStaticAnalyzer(), files, logger),
		Logger:      logger,
	}, batch.Options{WorkerID: "jobctl-test", DefaultProvider: "synthetic"})

	open := func(context.Context) (*runtime, error) {
		return &runtime{manager: manager}, nil
	}
	return open, scripts
}

func seed(t *testing.T, scripts *sqlitestore.ScriptStore, id string) {
	t.Helper()
	script := &domain.Script{ID: id, Title: id, Content: "a lighthouse at dusk", CreatedAt: time.Now().UTC()}
	for i, text := range []string{"a lighthouse at dusk", "waves against the rocks"} {
		script.Chunks = append(script.Chunks, domain.Chunk{ID: fmt.Sprintf("%s-c%d", id, i), Position: i, Content: text, EndTime: 2})
	}
	require.NoError(t, scripts.CreateScript(context.Background(), script))
}

func run(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestJobctlLifecycle(t *testing.T) {
	open, scripts := newTestRuntime(t)
	seed(t, scripts, "s1")

	out, err := run(t, open, "status", "s1")
	require.NoError(t, err)
	var status batch.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, batch.StatusNone, status.Status)

	rt, err := open(context.Background())
	require.NoError(t, err)
	_, created, err := rt.manager.CreateBatchJob(context.Background(), "s1", domain.JobConfig{})
	require.NoError(t, err)
	require.True(t, created)

	out, err = run(t, open, "cancel", "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"cancelled": true}`, out)

	out, err = run(t, open, "drain")
	require.NoError(t, err)
	assert.JSONEq(t, `{"passes": 0}`, out, "paused jobs are not claimed")

	_, err = run(t, open, "resume", "s1")
	require.NoError(t, err)

	out, err = run(t, open, "drain")
	require.NoError(t, err)
	assert.JSONEq(t, `{"passes": 1}`, out)

	out, err = run(t, open, "status", "s1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, 2, status.ProcessedChunks)

	out, err = run(t, open, "jobs", "s1")
	require.NoError(t, err)
	var jobs []batch.Status
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	assert.Len(t, jobs, 1)

	out, err = run(t, open, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "reconciled")

	out, err = run(t, open, "clear", "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted": 1}`, out)
}

func TestJobctlErrors(t *testing.T) {
	open, _ := newTestRuntime(t)

	_, err := run(t, open, "resume", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = run(t, open, "credentials", "set", "openai", "sk-test")
	assert.ErrorIs(t, err, errNoCredentialStore)

	_, err = run(t, open, "status")
	assert.Error(t, err, "status requires a script id")
}
