package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dreamup/lotto-agent/internal/agent"
	"github.com/dreamup/lotto-agent/internal/purchase"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	s := c.Settings()
	assert.Equal(t, 5, s.PurchaseCount)
	assert.Equal(t, 5000, s.Recharge.MinBalance)
	assert.Equal(t, 50000, s.Recharge.RechargeAmount)
	assert.False(t, s.Recharge.AutoRecharge)
	assert.Equal(t, 3*time.Second, c.ResolveTimeout())
	assert.Equal(t, 30*time.Minute, c.LockTTL())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
login:
  user_id: tester
  password: secret
purchase:
  count: 3
  directives:
    - type: manual
      numbers: [1, 7, 13, 22, 34, 45]
    - type: semi-auto
payment:
  auto_recharge: true
  recharge_amount: 20000
outcome:
  unmatched_verdict: unknown
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "tester", c.Login.UserID)
	assert.Equal(t, 3, c.Purchase.Count)
	assert.Equal(t, 1000, c.Purchase.UnitPrice)
	require.Len(t, c.Purchase.Directives, 2)
	assert.Equal(t, purchase.SelectionManual, c.Purchase.Directives[0].Type)
	assert.Equal(t, []int{1, 7, 13, 22, 34, 45}, c.Purchase.Directives[0].Numbers)
	assert.Equal(t, purchase.SelectionSemiAuto, c.Purchase.Directives[1].Type)
	assert.True(t, c.Payment.AutoRecharge)
	assert.Equal(t, 20000, c.Payment.RechargeAmount)
	assert.Equal(t, 5000, c.Payment.MinBalance)

	v, err := c.UnmatchedVerdict()
	require.NoError(t, err)
	assert.Equal(t, agent.VerdictUnknown, v)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LOTTO_LOGIN_PASSWORD", "from-env")
	t.Setenv("LOTTO_PURCHASE_COUNT", "2")

	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Login.Password)
	assert.Equal(t, 2, c.Purchase.Count)
	assert.Equal(t, "./data/lotto.db", c.Storage.DBPath)
}

func TestLoadExpandsHome(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)
	t.Setenv("LOTTO_STORAGE_EVIDENCE_DIR", "~/lotto/screenshots")

	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "lotto", "screenshots"), c.Storage.EvidenceDir)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero count", func(c *Config) { c.Purchase.Count = 0 }},
		{"bad verdict", func(c *Config) { c.Outcome.UnmatchedVerdict = "maybe" }},
		{"recharge without amount", func(c *Config) {
			c.Payment.AutoRecharge = true
			c.Payment.RechargeAmount = 0
		}},
		{"short manual", func(c *Config) {
			c.Purchase.Directives = []purchase.Directive{{Type: purchase.SelectionManual, Numbers: []int{1, 2, 3}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Equal(t, agent.ErrorCategoryConfig, agent.CategoryOf(err))
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lotto", "config.yaml")

	require.NoError(t, WriteDefault(path, false))
	assert.ErrorIs(t, WriteDefault(path, false), ErrExists)
	require.NoError(t, WriteDefault(path, true))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Purchase.Count, c.Purchase.Count)
	assert.Equal(t, Default().Storage.EvidenceDir, c.Storage.EvidenceDir)
	require.Len(t, c.Purchase.Directives, 1)
	assert.Equal(t, purchase.SelectionAuto, c.Purchase.Directives[0].Type)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("purchase:\n  count: 4\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOTTO_LOGIN_RECHARGE_PIN=135790\n"), 0o600))

	// registers cleanup of whatever the .env file sets
	t.Setenv("LOTTO_LOGIN_RECHARGE_PIN", "")
	require.NoError(t, os.Unsetenv("LOTTO_LOGIN_RECHARGE_PIN"))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "135790", c.Login.RechargePIN)
	assert.Equal(t, 4, c.Purchase.Count)
}
