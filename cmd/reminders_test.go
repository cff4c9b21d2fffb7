package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestRemindersCommands(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "test.db"))
	t.Setenv("LOG_MODE", "prod")

	out := runCLI(t, "reminders", "add", "Take pills", "--due", "2024-03-04 09:00:00", "--category", "medication")
	assert.Contains(t, out, "Added reminder 1 due 2024-03-04 09:00:00")

	out = runCLI(t, "reminders", "list")
	assert.Contains(t, out, "Take pills")
	assert.Contains(t, out, "medication")

	out = runCLI(t, "reminders", "complete", "1")
	assert.Contains(t, out, "Reminder 1 marked as completed")

	out = runCLI(t, "reminders", "list")
	assert.Contains(t, out, "No reminders.")

	out = runCLI(t, "reminders", "list", "--all")
	assert.Contains(t, out, "[x]")
}

func TestVersionCommand(t *testing.T) {
	out := runCLI(t, "version")
	assert.Contains(t, out, "carecam "+Version)
}
