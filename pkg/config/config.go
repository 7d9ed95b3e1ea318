package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/yaml.v3"

	"github.com/Solana-ZH/gorbswap/pkg/logger"
	"github.com/Solana-ZH/gorbswap/pkg/pool/gorb"
)

var ErrInvalidConfig = errors.New("invalid config")

type LogConfig struct {
	Format     string `yaml:"format"`  // console or json
	LogDir     string `yaml:"log_dir"` // empty: stderr only
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:     c.Format,
		Level:      c.Level,
		LogDir:     c.LogDir,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	}
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty: workflow state goes to StateFile
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type Config struct {
	RPCURL     string  `yaml:"rpc_url"`
	WSURL      string  `yaml:"ws_url"`
	Commitment string  `yaml:"commitment"`
	RPS        float64 `yaml:"requests_per_second"`
	// ConfirmTimeout bounds the wait for each submitted request, e.g. "90s". Zero keeps the client default.
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`

	ProgramID                string `yaml:"program_id"`
	TokenProgramID           string `yaml:"token_program_id"`
	AssociatedTokenProgramID string `yaml:"associated_token_program_id"`
	// QueryTable selects the discriminator table exposing FindPoolsByToken at 8.
	QueryTable bool `yaml:"query_table"`

	KeypairPath string `yaml:"keypair_path"`
	PrivateKey  string `yaml:"-"`

	StateFile string      `yaml:"state_file"`
	Redis     RedisConfig `yaml:"redis"`

	ComputeUnitLimit uint32 `yaml:"compute_unit_limit"`
	ComputeUnitPrice uint64 `yaml:"compute_unit_price"`

	Log LogConfig `yaml:"logger"`
}

// Default targets GorbChain.
func Default() *Config {
	return &Config{
		RPCURL:                   "https://rpc.gorbchain.xyz",
		Commitment:               string(rpc.CommitmentConfirmed),
		ProgramID:                gorb.GORB_AMM_PROGRAM_ID.String(),
		TokenProgramID:           gorb.GORB_TOKEN_PROGRAM_ID.String(),
		AssociatedTokenProgramID: gorb.GORB_ASSOCIATED_TOKEN_PROGRAM_ID.String(),
		StateFile:                "gorbswap-state.json",
		Redis:                    RedisConfig{Key: "gorbswap:workflow"},
		Log:                      LogConfig{Format: "console", Level: "info"},
	}
}

// Load reads path (optional), then .env from dir, then the environment, and validates the result.
func Load(path, envDir string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if envDir != "" {
		if err := LoadEnv(envDir); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"SOLANA_RPC_URL":        &c.RPCURL,
		"SOLANA_WS_RPC_URL":     &c.WSURL,
		"SOLANA_PRIVATE_KEY":    &c.PrivateKey,
		"GORB_RPC_URL":          &c.RPCURL,
		"GORB_WS_URL":           &c.WSURL,
		"GORB_COMMITMENT":       &c.Commitment,
		"GORB_PROGRAM_ID":       &c.ProgramID,
		"GORB_TOKEN_PROGRAM_ID": &c.TokenProgramID,
		"GORB_ATA_PROGRAM_ID":   &c.AssociatedTokenProgramID,
		"GORB_KEYPAIR":          &c.KeypairPath,
		"GORB_STATE_FILE":       &c.StateFile,
		"GORB_REDIS_ADDR":       &c.Redis.Addr,
		"GORB_REDIS_KEY":        &c.Redis.Key,
		"GORB_LOG_LEVEL":        &c.Log.Level,
	}
	// GORB_* wins over the SOLANA_* names
	for _, name := range []string{
		"SOLANA_RPC_URL", "SOLANA_WS_RPC_URL", "SOLANA_PRIVATE_KEY",
		"GORB_RPC_URL", "GORB_WS_URL", "GORB_COMMITMENT", "GORB_PROGRAM_ID",
		"GORB_TOKEN_PROGRAM_ID", "GORB_ATA_PROGRAM_ID", "GORB_KEYPAIR",
		"GORB_STATE_FILE", "GORB_REDIS_ADDR", "GORB_REDIS_KEY", "GORB_LOG_LEVEL",
	} {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*str[name] = v
		}
	}
	if v := os.Getenv("GORB_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: GORB_RPS: %v", ErrInvalidConfig, err)
		}
		c.RPS = rps
	}
	if v := os.Getenv("GORB_CONFIRM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: GORB_CONFIRM_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		c.ConfirmTimeout = d
	}
	return nil
}

func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("%w: rpc_url is required", ErrInvalidConfig)
	}
	switch rpc.CommitmentType(c.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("%w: unknown commitment %q", ErrInvalidConfig, c.Commitment)
	}
	if _, err := c.Programs(); err != nil {
		return err
	}
	if c.StateFile == "" && c.Redis.Addr == "" {
		return fmt.Errorf("%w: state_file or redis.addr is required", ErrInvalidConfig)
	}
	if c.Redis.Addr != "" && c.Redis.Key == "" {
		return fmt.Errorf("%w: redis.key is required with redis.addr", ErrInvalidConfig)
	}
	if c.RPS < 0 {
		return fmt.Errorf("%w: requests_per_second must not be negative", ErrInvalidConfig)
	}
	if c.ConfirmTimeout < 0 {
		return fmt.Errorf("%w: confirm_timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ProgramIDs are the parsed program addresses of one deployment.
type ProgramIDs struct {
	AMM             solana.PublicKey
	Token           solana.PublicKey
	AssociatedToken solana.PublicKey
	Discriminators  gorb.Discriminators
}

func (c *Config) Programs() (ProgramIDs, error) {
	parse := func(name, v string) (solana.PublicKey, error) {
		k, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("%w: %s %q: %v", ErrInvalidConfig, name, v, err)
		}
		return k, nil
	}
	amm, err := parse("program_id", c.ProgramID)
	if err != nil {
		return ProgramIDs{}, err
	}
	token, err := parse("token_program_id", c.TokenProgramID)
	if err != nil {
		return ProgramIDs{}, err
	}
	ata, err := parse("associated_token_program_id", c.AssociatedTokenProgramID)
	if err != nil {
		return ProgramIDs{}, err
	}
	table := gorb.DefaultDiscriminators
	if c.QueryTable {
		table = gorb.QueryDiscriminators
	}
	return ProgramIDs{AMM: amm, Token: token, AssociatedToken: ata, Discriminators: table}, nil
}

// Signer loads the wallet key: a base58 key from the environment wins over KeypairPath.
func (c *Config) Signer() (solana.PrivateKey, error) {
	if c.PrivateKey != "" {
		k, err := solana.PrivateKeyFromBase58(c.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: SOLANA_PRIVATE_KEY: %v", ErrInvalidConfig, err)
		}
		return k, nil
	}
	if c.KeypairPath == "" {
		return nil, fmt.Errorf("%w: no private key or keypair_path", ErrInvalidConfig)
	}
	k, err := solana.PrivateKeyFromSolanaKeygenFile(c.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", c.KeypairPath, err)
	}
	return k, nil
}
