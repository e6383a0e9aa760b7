package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billgrid/internal/config"
)

func settingByLabel(t *testing.T, label string) setting {
	t.Helper()
	for _, s := range editableSettings {
		if s.label == label {
			return s
		}
	}
	t.Fatalf("no setting %q", label)
	return setting{}
}

func TestEditableSettingsRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	next := *cfg
	for _, s := range editableSettings {
		require.NoError(t, s.apply(&next, s.value(cfg)), s.label)
	}
	assert.Equal(t, *cfg, next)
}

func TestEditableSettingsParse(t *testing.T) {
	cfg := config.DefaultConfig()

	require.NoError(t, settingByLabel(t, "Default Payment (%)").apply(cfg, "75%"))
	assert.Equal(t, 75.0, cfg.Grid.DefaultPaymentPercent)
	assert.Error(t, settingByLabel(t, "Default Payment (%)").apply(cfg, "101"))

	require.NoError(t, settingByLabel(t, "Code Search Delay").apply(cfg, "150ms"))
	assert.Equal(t, 150*time.Millisecond, cfg.Grid.SearchDebounce)
	assert.Error(t, settingByLabel(t, "Code Search Delay").apply(cfg, "soon"))

	dup := settingByLabel(t, "Confirm Duplicates Above")
	assert.Error(t, dup.apply(cfg, "0"))
	assert.Error(t, dup.apply(cfg, "1000"))
	require.NoError(t, dup.apply(cfg, "10"))
	assert.Equal(t, 10, cfg.Grid.DuplicateConfirm)

	assert.Error(t, settingByLabel(t, "Bill Number Prefix").apply(cfg, ""))
	assert.Error(t, settingByLabel(t, "Export Directory").apply(cfg, ""))

	require.NoError(t, settingByLabel(t, "Log Level").apply(cfg, "DEBUG"))
	assert.Equal(t, "debug", cfg.Log.Level)
}
