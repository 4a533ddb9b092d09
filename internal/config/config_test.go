package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("GROUP_ID", "-100123")
	t.Setenv("WALLET_ADDRESS", "TWallet")
	t.Setenv("ADMIN_IDS", " 1, 2 ,bogus,3")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(-100123), cfg.GroupID)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "tron", cfg.PaymentNetwork)
	assert.Equal(t, int32(6), cfg.PaymentDecimals)
	assert.Equal(t, 15*time.Second, cfg.ExplorerTimeout)
	assert.Equal(t, time.Duration(0), cfg.MessageRetention)
	assert.True(t, cfg.IsAdmin(1))
	assert.True(t, cfg.IsAdmin(3))
	assert.False(t, cfg.IsAdmin(4))
	assert.Len(t, cfg.AdminIDs, 3)
}

func TestValidate(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("PAYMENT_NETWORK", "eth")
	t.Setenv("MESSAGE_RETENTION", "30m")

	err := Load().Validate()
	require.Error(t, err)

	for _, want := range []string{"BOT_TOKEN", "GROUP_ID", "WALLET_ADDRESS", "DB_DRIVER", "PAYMENT_NETWORK", "MESSAGE_RETENTION"} {
		assert.Contains(t, err.Error(), want)
	}
}
