package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3-test"
	SetVersion(testVersion)
	assert.Equal(t, testVersion, rootCmd.Version)
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "reporunner", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestSubcommandsRegistered(t *testing.T) {
	var names []string
	for _, sub := range rootCmd.Commands() {
		names = append(names, strings.Fields(sub.Use)[0])
	}
	for _, expected := range []string{"run", "resume", "detect", "version"} {
		assert.Contains(t, names, expected)
	}
}

func TestVersionCommandOutput(t *testing.T) {
	SetVersion("9.9.9")
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)
	assert.Contains(t, out.String(), "reporunner version 9.9.9")
}

func TestRunCommandRequiresPath(t *testing.T) {
	cmd := newRunCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}

func TestResumeCommandRequiresRunID(t *testing.T) {
	cmd := newResumeCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{t.TempDir()})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-id")
}
