package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/odyssey-rent/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("CSRF_SECRET", "secret")
	t.Setenv("APP_BASE_URL", "https://rent.example/")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "https://rent.example", cfg.AppBaseURL)
	require.Equal(t, "https://rent.example/payments/callback", cfg.PaymentRedirectURL("/payments/callback"))
	require.Equal(t, "NGN", cfg.FlwCurrency)
	require.Equal(t, 3, cfg.ReminderDaysBeforeDue)
	require.Equal(t, 30, cfg.ReminderLeaseDays)
	require.Equal(t, "0 9 * * *", cfg.ReminderCron)
	require.Equal(t, "0 14 * * *", cfg.ReminderAfternoonCron)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "Africa/Lagos", loc.String())
}

func TestLoadConfigReadsEnvFileWithoutOverriding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rent.env")
	require.NoError(t, os.WriteFile(path, []byte("FLW_PUBLIC_KEY=FLWPUBK-from-file\nFLW_CURRENCY=GHS\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("CSRF_SECRET", "secret")
	t.Setenv("FLW_CURRENCY", "NGN")
	t.Cleanup(func() { _ = os.Unsetenv("FLW_PUBLIC_KEY") })

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "FLWPUBK-from-file", cfg.FlwPublicKey)
	require.Equal(t, "NGN", cfg.FlwCurrency)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("CSRF_SECRET", "secret")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "APP_TIMEZONE")

	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestTestModeFlag(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv("RENT_TEST_MODE", "false")
	RefreshTestMode()
	require.False(t, InTestMode())

	t.Setenv("RENT_TEST_MODE", "true")
	RefreshTestMode()
	require.True(t, InTestMode())
}
