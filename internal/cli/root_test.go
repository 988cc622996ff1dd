package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "paneldiff", cmd.Use)
	assert.Contains(t, cmd.Short, "structural change detection")
	assert.True(t, cmd.HasSubCommands())
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"validate", "fingerprint", "reconcile", "history", "set", "field", "watch"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	if assert.NotNil(t, verbose) {
		assert.Equal(t, "v", verbose.Shorthand)
		assert.Equal(t, "false", verbose.DefValue)
	}

	format := cmd.PersistentFlags().Lookup("format")
	if assert.NotNil(t, format) {
		assert.Equal(t, "text", format.DefValue)
	}
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "validate", "panels.yaml"})

	err := cmd.Execute()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), `invalid format "xml"`)
	}
}

func TestRootCommand_FieldDeleteReachable(t *testing.T) {
	cmd := NewRootCommand()

	sub, _, err := cmd.Find([]string{"field", "delete"})
	assert.NoError(t, err)
	assert.Equal(t, "delete", sub.Name())
}
