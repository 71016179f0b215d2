package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionShort(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version", "--short"})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "v"+Version+"\n", out.String())
}

func TestVersionFull(t *testing.T) {
	require.NoError(t, versionCmd.Flags().Set("short", "false"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Podscribe")
	assert.Contains(t, out.String(), "Version:      v"+Version)
	assert.Contains(t, out.String(), "Go Version:")
}
