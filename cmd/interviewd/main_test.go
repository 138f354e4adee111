package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/config"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/persistence"
)

func execute(t *testing.T, ctx context.Context, args ...string) (string, *viper.Viper, error) {
	t.Helper()
	v := viper.New()
	root := newRootCmd(v)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), v, err
}

// =============================================================================
// CONFIG
// =============================================================================

func TestEngineConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "interviewd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("supersede_on_chat: false\npersist_timeout: 4\n"), 0o644))
	t.Setenv("INTERVIEWD_PERSIST_TIMEOUT", "7")

	_, v, err := execute(t, context.Background(), "phases", "--config", path, "--log-level", "debug")
	require.NoError(t, err)

	cfg, err := loadEngineConfig(v)
	require.NoError(t, err)
	assert.False(t, cfg.SupersedeOnChat, "config file")
	assert.Equal(t, 7, cfg.PersistTimeout, "environment beats config file")
	assert.Equal(t, "debug", cfg.LogLevel, "flag")
	assert.True(t, cfg.AutoPersistKnowledgeCards, "default")
}

func TestEngineConfigInvalid(t *testing.T) {
	t.Setenv("INTERVIEWD_RESTORE_TIMEOUT", "0")

	_, v, err := execute(t, context.Background(), "phases")
	require.NoError(t, err)

	_, err = loadEngineConfig(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore_timeout")
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := execute(t, context.Background(), "phases", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

// =============================================================================
// PHASES
// =============================================================================

func TestPhasesTable(t *testing.T) {
	out, _, err := execute(t, context.Background(), "phases")
	require.NoError(t, err)

	for _, want := range []string{"core_facts", "deep_dive", "applicant_profile", "skeleton_timeline", "submit_for_validation when timeline_edits_confirmed is completed"} {
		assert.Contains(t, out, want)
	}
}

func TestPhasesYAMLRoundTrip(t *testing.T) {
	out, _, err := execute(t, context.Background(), "phases", "--yaml")
	require.NoError(t, err)

	script, err := config.PhaseScriptFromYAML([]byte(out))
	require.NoError(t, err)
	assert.Len(t, script.Phases, len(config.DefaultPhaseScript().Phases))
}

func TestPhasesRejectsInvalidScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("phases:\n  - phase: nowhere\n"), 0o644))

	_, _, err := execute(t, context.Background(), "phases", "--script", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase script must define")
}

// =============================================================================
// RECORDS
// =============================================================================

func TestRecords(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "interview.db")

	store, err := persistence.OpenSQLite(ctx, db)
	require.NoError(t, err)
	cardID, err := store.Persist(ctx, interview.RecordTypeKnowledgeCard, []byte(`{"id":"kc-1","title":"Data pipeline rebuild"}`))
	require.NoError(t, err)
	profileID, err := store.Persist(ctx, interview.RecordTypeApplicantProfile, []byte(`{"name":"Ada Lovelace"}`))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	t.Run("table", func(t *testing.T) {
		out, _, err := execute(t, ctx, "records", "--db", db)
		require.NoError(t, err)
		assert.Contains(t, out, cardID)
		assert.Contains(t, out, profileID)
	})

	t.Run("filtered json", func(t *testing.T) {
		out, _, err := execute(t, ctx, "records", "--db", db, "--type", interview.RecordTypeKnowledgeCard, "--json")
		require.NoError(t, err)

		var records []persistence.Record
		require.NoError(t, json.Unmarshal([]byte(out), &records))
		require.Len(t, records, 1)
		assert.Equal(t, cardID, records[0].ID)
		assert.JSONEq(t, `{"id":"kc-1","title":"Data pipeline rebuild"}`, string(records[0].Payload))
	})
}

// =============================================================================
// SERVE
// =============================================================================

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	db := filepath.Join(t.TempDir(), "interview.db")
	time.AfterFunc(300*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		_, _, err := execute(t, ctx, "serve", "--listen", "127.0.0.1:0", "--db", db, "--log-level", "error")
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
