package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const EnvProduction = "production"

// Config centraliza la configuración del servicio.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int    `env:"DB_MAX_CONNS" envDefault:"10"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	// SIWE
	ChainID    int64         `env:"CHAIN_ID" envDefault:"11155111"`
	SIWEDomain string        `env:"SIWE_DOMAIN"`
	NonceTTL   time.Duration `env:"NONCE_TTL" envDefault:"10m"`

	// Subdominios
	RootDomain        string        `env:"ROOT_DOMAIN" envDefault:"ethed.eth"`
	BrandWord         string        `env:"BRAND_WORD" envDefault:"ethed"`
	AvatarResolverURL string        `env:"AVATAR_RESOLVER_URL" envDefault:"https://metadata.ens.domains/mainnet/avatar"`
	AvatarTimeout     time.Duration `env:"AVATAR_TIMEOUT" envDefault:"2s"`

	// Metadata
	PinataJWT              string        `env:"PINATA_JWT"`
	PinataBaseURL          string        `env:"PINATA_BASE_URL" envDefault:"https://api.pinata.cloud"`
	FallbackDir            string        `env:"FALLBACK_DIR" envDefault:"./data/metadata"`
	FallbackBaseURL        string        `env:"FALLBACK_BASE_URL" envDefault:"http://localhost:8080/metadata"`
	PublishTimeout         time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"15s"`
	CredentialImageBaseURL string        `env:"CREDENTIAL_IMAGE_BASE_URL" envDefault:"https://ethed.app/badges"`

	// Chain
	ChainRelayerURL       string        `env:"CHAIN_RELAYER_URL"`
	ChainRelayerToken     string        `env:"CHAIN_RELAYER_TOKEN"`
	ContractAddress       string        `env:"CONTRACT_ADDRESS" envDefault:"0x0000000000000000000000000000000000000000"`
	SimulatedConfirmDelay time.Duration `env:"SIMULATED_CONFIRM_DELAY" envDefault:"2s"`
	MintTimeout           time.Duration `env:"MINT_TIMEOUT" envDefault:"30s"`

	// Eventos
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"ethed.events"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction indica si el despliegue exige almacenamiento durable.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), EnvProduction)
}
