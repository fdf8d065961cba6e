package config

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEnvString_Passthrough(t *testing.T) {
	assert.Equal(t, "literal-value", resolveEnvString("literal-value"))
}

func TestResolveEnvString_EnvLookup(t *testing.T) {
	require.NoError(t, os.Setenv("CONFIG_TEST_VAR", "resolved"))
	defer func() { _ = os.Unsetenv("CONFIG_TEST_VAR") }()

	assert.Equal(t, "resolved", resolveEnvString("os.environ/CONFIG_TEST_VAR"))
}

func TestResolveEnvString_MissingEnvReturnsEmpty(t *testing.T) {
	_ = os.Unsetenv("CONFIG_TEST_MISSING_VAR")
	assert.Equal(t, "", resolveEnvString("os.environ/CONFIG_TEST_MISSING_VAR"))
}

func TestParseField_DefaultOnEmpty(t *testing.T) {
	got, err := parseField("", 42, parseIntValue, "some.field")
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestParseField_ParsesValue(t *testing.T) {
	got, err := parseField("100", 42, parseIntValue, "some.field")
	require.NoError(t, err)
	assert.Equal(t, 100, got)
}

func TestParseField_InvalidValue(t *testing.T) {
	_, err := parseField("not-an-int", 42, parseIntValue, "some.field")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "some.field")
}

func TestParseBoolValue(t *testing.T) {
	got, err := parseBoolValue("true")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestPrintConfig_DoesNotPanic(t *testing.T) {
	cfg := baseValidConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	PrintConfig(logger, cfg)
}
