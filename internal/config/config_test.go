package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestManager_LoadAppliesDefaults(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	defer m.Close()

	require.NoError(t, m.Load(false, filepath.Join(t.TempDir(), "missing.yaml")))
	cfg := m.Config()
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, uint8(18), cfg.Engine.CriticalHeight)
	assert.Equal(t, time.Minute, cfg.Engine.SnapshotInterval)
	assert.Equal(t, incentives.DefaultParams(), cfg.Incentives)
	assert.Equal(t, "none", cfg.Storage.EventStoreDriver)

	ex := cfg.Engine.Exchange()
	assert.Equal(t, uint8(18), ex.CriticalHeight)
	assert.Equal(t, 1024, ex.DispatchBuffer)
}

func TestManager_LoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
environment: staging
server:
  port: 9090
engine:
  critical_height: 12
  snapshot_interval: 30s
incentives:
  taker_fee_divisor: 1000
  tiers:
    - {fee_share_divisor: 4000, tier_activation_fee: 0, withdrawal_fee: 100}
storage:
  event_store_driver: sqlite
  event_store_dsn: "file::memory:"
`)
	t.Setenv("CLOB_SERVER_PORT", "9191")
	t.Setenv("CLOB_MESSAGING_KAFKA_BROKERS", "k1:9092,k2:9092")

	m := NewManager(zaptest.NewLogger(t))
	defer m.Close()
	require.NoError(t, m.Load(false, path))

	cfg := m.Config()
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, uint8(12), cfg.Engine.CriticalHeight)
	assert.Equal(t, 30*time.Second, cfg.Engine.SnapshotInterval)
	assert.Equal(t, uint64(1000), cfg.Incentives.TakerFeeDivisor)
	assert.Equal(t, []incentives.Tier{{FeeShareDivisor: 4000, WithdrawalFee: 100}}, cfg.Incentives.Tiers)
	assert.Equal(t, model.UtilityCoin, cfg.Incentives.UtilityCoinType)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Messaging.Kafka.Brokers)
}

func TestManager_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad environment", "environment: moon\n"},
		{"critical height", "engine:\n  critical_height: 19\n"},
		{"short jwt secret", "auth:\n  enabled: true\n  secret: short\n"},
		{"production without auth", "environment: production\n"},
		{"event store without dsn", "storage:\n  event_store_driver: postgres\n"},
		{"kafka without brokers", "messaging:\n  kafka:\n    enabled: true\n"},
		{"taker divisor above tier divisor", "incentives:\n  taker_fee_divisor: 20000\n"},
		{"negative snapshot interval", "engine:\n  snapshot_interval: -1m\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.content)
			m := NewManager(zaptest.NewLogger(t))
			defer m.Close()
			assert.Error(t, m.Load(false, path))
			assert.Nil(t, m.Config())
		})
	}
}

func TestManager_ReloadRunsCallbacks(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "incentives:\n  taker_fee_divisor: 2000\n")
	m := NewManager(zaptest.NewLogger(t))
	defer m.Close()
	require.NoError(t, m.Load(false, path))

	var seen []uint64
	m.OnReload(func(oldConfig, newConfig *Config) error {
		seen = append(seen, oldConfig.Incentives.TakerFeeDivisor, newConfig.Incentives.TakerFeeDivisor)
		return nil
	})
	require.NoError(t, os.WriteFile(path, []byte("incentives:\n  taker_fee_divisor: 2500\n"), 0o600))
	require.NoError(t, m.Reload())
	assert.Equal(t, []uint64{2000, 2500}, seen)
	assert.Equal(t, uint64(2500), m.Config().Incentives.TakerFeeDivisor)

	m.OnReload(func(_, _ *Config) error { return assert.AnError })
	require.NoError(t, os.WriteFile(path, []byte("incentives:\n  taker_fee_divisor: 3000\n"), 0o600))
	assert.ErrorIs(t, m.Reload(), assert.AnError)
	assert.Equal(t, uint64(2500), m.Config().Incentives.TakerFeeDivisor)
}

func TestManager_WatchReloadsOnWrite(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "server:\n  port: 8081\n")
	m := NewManager(zaptest.NewLogger(t))
	defer m.Close()
	require.NoError(t, m.Load(true, path))

	reloaded := make(chan int, 1)
	m.OnReload(func(_, newConfig *Config) error {
		select {
		case reloaded <- newConfig.Server.Port:
		default:
		}
		return nil
	})
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8082\n"), 0o600))

	select {
	case port := <-reloaded:
		assert.Equal(t, 8082, port)
	case <-time.After(5 * time.Second):
		t.Fatal("configuration was not reloaded")
	}
}

func TestParseSeeds(t *testing.T) {
	seeds, err := ParseSeeds([]byte(`
underwriters: 1
markets:
  - {base: APT, quote: USDC, lot_size: 100, tick_size: 1, min_size: 1}
  - {base_name_generic: gold, quote: USDC, lot_size: 1, tick_size: 1, min_size: 1, underwriter: 1}
`))
	require.NoError(t, err)
	require.Len(t, seeds.Markets, 2)
	assert.Equal(t, model.AssetType("APT"), seeds.Markets[0].Info().BaseType)
	generic := seeds.Markets[1].Info()
	assert.True(t, generic.IsGeneric())
	assert.Equal(t, uint64(1), generic.UnderwriterID)

	_, err = ParseSeeds([]byte("markets:\n  - {base: A, quote: B, underwriter: 2}\n"))
	assert.Error(t, err)
	_, err = ParseSeeds([]byte("market: []\n"))
	assert.Error(t, err)
}

func TestLoadSeeds_RepositoryFile(t *testing.T) {
	seeds, err := LoadSeeds(filepath.Join("..", "..", "configs", "markets.yaml"))
	require.NoError(t, err)
	assert.Len(t, seeds.Markets, 3)
}
