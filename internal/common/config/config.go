package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	ModeFixture = "fixture"
	ModeLive    = "live"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	// fixture: in-memory кошелек, контракты и IPFS; live: keystore + RPC + IPFS
	Mode string `env:"APP_MODE" envDefault:"fixture"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:8080"`
	}

	Redis struct {
		Enabled  bool   `env:"REDIS_ENABLED" envDefault:"true"`
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Wallet struct {
		KeystoreDir string `env:"WALLET_KEYSTORE_DIR" envDefault:"./keystore"`
		// Пустое значение: первый аккаунт из keystore
		Account    string `env:"WALLET_ACCOUNT" envDefault:""`
		Passphrase string `env:"WALLET_PASSPHRASE" envDefault:""`
	}

	Chain struct {
		RPCURL           string `env:"CHAIN_RPC_URL" envDefault:"http://localhost:8545"`
		ChainID          int64  `env:"CHAIN_ID" envDefault:"11155111"`
		TitleRegistry    string `env:"CHAIN_TITLE_REGISTRY" envDefault:"0x0000000000000000000000000000000000000001"`
		KYCRegistry      string `env:"CHAIN_KYC_REGISTRY" envDefault:"0x0000000000000000000000000000000000000002"`
		Marketplace      string `env:"CHAIN_MARKETPLACE" envDefault:"0x0000000000000000000000000000000000000003"`
		PropertyRegistry string `env:"CHAIN_PROPERTY_REGISTRY" envDefault:"0x8149CD89e2376Cb4bF852609d782B3d23C541560"`
		// Комиссия за requestProperty в wei
		RequestFeeWei string `env:"CHAIN_REQUEST_FEE_WEI" envDefault:"0"`
		ExplorerURL   string `env:"CHAIN_EXPLORER_URL" envDefault:"https://sepolia.etherscan.io"`
	}

	IPFS struct {
		GatewayURL    string        `env:"IPFS_GATEWAY_URL" envDefault:"https://ipfs.io"`
		APIURL        string        `env:"IPFS_API_URL" envDefault:"https://ipfs.infura.io:5001"`
		ProjectID     string        `env:"IPFS_PROJECT_ID" envDefault:""`
		ProjectSecret string        `env:"IPFS_PROJECT_SECRET" envDefault:""`
		Timeout       time.Duration `env:"IPFS_TIMEOUT" envDefault:"15s"`
		CacheTTL      time.Duration `env:"IPFS_CACHE_TTL" envDefault:"24h"`
	}

	Properties struct {
		FetchConcurrency int `env:"PROPERTY_FETCH_CONCURRENCY" envDefault:"4"`
	}

	Retry struct {
		MaxAttempts     uint64        `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
		InitialInterval time.Duration `env:"RETRY_INITIAL_INTERVAL" envDefault:"250ms"`
	}

	Actions struct {
		// Страховка для guard: подтверждение ждем без таймаута, ключ живет не дольше TTL
		InflightTTL time.Duration `env:"ACTION_INFLIGHT_TTL" envDefault:"30m"`
	}
}

func Load() (*Config, error) {
	// В production переменные могут быть заданы напрямую, .env не обязателен
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Mode != ModeFixture && cfg.Mode != ModeLive {
		return nil, fmt.Errorf("invalid APP_MODE %q: expected %q or %q", cfg.Mode, ModeFixture, ModeLive)
	}

	return cfg, nil
}

func (c *Config) IsLive() bool {
	return c.Mode == ModeLive
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
