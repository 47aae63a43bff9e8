package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalmisr/omal-responder/internal/config"
)

func runCmd(t *testing.T, build func() *cobra.Command, args ...string) (string, error) {
	t.Helper()
	cmd := build()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMenuCommand(t *testing.T) {
	cfg = &config.Config{Logging: config.LoggingConfig{Level: "error"}}

	out, err := runCmd(t, menuCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "MENU_find_job")

	out, err = runCmd(t, menuCmd, "MENU_find_job")
	require.NoError(t, err)
	assert.Contains(t, out, "أبحث عن عمل")
	assert.Contains(t, out, "SUBMENU_find_job__job_registration")

	_, err = runCmd(t, menuCmd, "MENU_unknown")
	assert.Error(t, err)
}

func TestCatalogValidateCommand(t *testing.T) {
	cfg = &config.Config{}

	out, err := runCmd(t, catalogCmd, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog OK")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("organization: 42\nknowledge: nope\n"), 0o600))
	_, err = runCmd(t, catalogCmd, "validate", bad)
	assert.Error(t, err)
}

func TestCatalogShowCommand(t *testing.T) {
	cfg = &config.Config{}

	out, err := runCmd(t, catalogCmd, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "kb-about")
	assert.Contains(t, out, "find_job")
}

func TestAskCommandOffline(t *testing.T) {
	cfg = &config.Config{
		Engine: config.EngineConfig{
			SimilarityThreshold:   config.DefaultSimilarityThreshold,
			RelaxedThreshold:      config.DefaultRelaxedThreshold,
			ContinuationPrompting: true,
			NameCollection:        true,
			GroundingSamples:      3,
		},
		Completion: config.CompletionConfig{Provider: "none", MaxAttempts: 1},
		Logging:    config.LoggingConfig{Level: "error"},
	}

	out, err := runCmd(t, askCmd, "ما", "هو", "مجمع", "عمال", "مصر؟")
	require.NoError(t, err)
	assert.Contains(t, out, "منظومة صناعية")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.False(t, strings.Contains(truncate("a\nb", 10), "\n"))
}
