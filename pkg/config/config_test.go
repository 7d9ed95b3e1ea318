package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solana-ZH/gorbswap/pkg/pool/gorb"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"SOLANA_RPC_URL", "SOLANA_WS_RPC_URL", "SOLANA_PRIVATE_KEY",
		"GORB_RPC_URL", "GORB_WS_URL", "GORB_COMMITMENT", "GORB_PROGRAM_ID",
		"GORB_TOKEN_PROGRAM_ID", "GORB_ATA_PROGRAM_ID", "GORB_KEYPAIR",
		"GORB_STATE_FILE", "GORB_REDIS_ADDR", "GORB_REDIS_KEY", "GORB_LOG_LEVEL", "GORB_RPS",
		"GORB_CONFIRM_TIMEOUT",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("", "")
	require.NoError(t, err)

	ids, err := cfg.Programs()
	require.NoError(t, err)
	assert.Equal(t, gorb.GORB_AMM_PROGRAM_ID, ids.AMM)
	assert.Equal(t, gorb.GORB_TOKEN_PROGRAM_ID, ids.Token)
	assert.Equal(t, gorb.DefaultDiscriminators, ids.Discriminators)
}

func TestLoadYamlThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "gorbswap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc_url: http://yaml:8899
commitment: finalized
requests_per_second: 5
confirm_timeout: 45s
query_table: true
state_file: state.json
redis:
  addr: localhost:6379
  key: wf
logger:
  level: debug
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(`
# comment
export SOLANA_RPC_URL="http://dotenv:8899"
GORB_WS_URL='ws://dotenv:8900'
`), 0o600))
	t.Setenv("GORB_WS_URL", "ws://env:8900")

	cfg, err := Load(path, dir)
	require.NoError(t, err)
	assert.Equal(t, "http://dotenv:8899", cfg.RPCURL)
	assert.Equal(t, "ws://env:8900", cfg.WSURL)
	assert.Equal(t, "finalized", cfg.Commitment)
	assert.Equal(t, 5.0, cfg.RPS)
	assert.Equal(t, 45*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)

	ids, err := cfg.Programs()
	require.NoError(t, err)
	assert.Equal(t, gorb.QueryDiscriminators, ids.Discriminators)
}

func TestValidateErrors(t *testing.T) {
	cfg := Default()
	cfg.Commitment = "eventual"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default()
	cfg.ProgramID = "not-a-key"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default()
	cfg.StateFile = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default()
	cfg.ConfirmTimeout = -time.Second
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestSigner(t *testing.T) {
	wallet := solana.NewWallet()
	cfg := Default()

	_, err := cfg.Signer()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.PrivateKey = wallet.PrivateKey.String()
	key, err := cfg.Signer()
	require.NoError(t, err)
	assert.Equal(t, wallet.PublicKey(), key.PublicKey())
}
