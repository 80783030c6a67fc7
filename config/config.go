package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// Config es la configuración completa de pairbot.
// Capas: defaults < YAML < .env / entorno < flags (aplicados en main).
type Config struct {
	Pair     PairConfig     `yaml:"pair"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Risk     RiskConfig     `yaml:"risk"`
	Feed     FeedConfig     `yaml:"feed"`
	Wallet   WalletConfig   `yaml:"wallet"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Merge    MergeConfig    `yaml:"merge"`
	Log      LogConfig      `yaml:"log"`
	// DryRun simula las órdenes contra los books reales sin firmar nada.
	DryRun bool `yaml:"dry_run"`
}

// PairConfig define el par de órdenes de cada ventana.
type PairConfig struct {
	Price     float64 `yaml:"price"`  // precio simétrico de ambas patas
	USD       float64 `yaml:"usd"`    // presupuesto por pata; ignorado si shares > 0
	Shares    float64 `yaml:"shares"` // tamaño explícito por pata
	PostOnly  *bool   `yaml:"post_only"`
	UpToken   string  `yaml:"up_token"`
	DownToken string  `yaml:"down_token"`
	// Slug del mercado, p.ej. btc-updown-15m-1760015700. Se usa si faltan los token ids.
	Slug             string  `yaml:"slug"`
	AllowWeirdQuotes bool    `yaml:"allow_weird_quotes"`
	MinEdge          float64 `yaml:"min_edge"`
}

// ScheduleConfig controla cuándo empieza cada ventana.
type ScheduleConfig struct {
	StartAt      string        `yaml:"start_at"`       // RFC3339; gana sobre todo lo demás
	UseSlugEpoch bool          `yaml:"use_slug_epoch"` // empezar en el epoch del slug
	Align        bool          `yaml:"align"`          // esperar al siguiente múltiplo de period
	Period       time.Duration `yaml:"period"`
	Duration     time.Duration `yaml:"duration"`
	Repeat       bool          `yaml:"repeat"`
	MaxWindows   int           `yaml:"max_windows"` // 0 = sin límite
}

// RiskConfig controla la gestión del riesgo de una sola pata llena.
type RiskConfig struct {
	Policy       string        `yaml:"policy"` // wait | cancel | hedge
	Grace        time.Duration `yaml:"grace"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxIdle      time.Duration `yaml:"max_idle"`
	MinHedgeEdge float64       `yaml:"min_hedge_edge"`
	CloseTimeout time.Duration `yaml:"close_timeout"`
}

// FeedConfig controla el canal de eventos de usuario por websocket.
type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// WalletConfig contiene la identidad de firma. La clave se lee normalmente de POLY_PRIVATE_KEY.
type WalletConfig struct {
	PrivateKey      string `yaml:"private_key"`
	Funder          string `yaml:"funder"`
	SignatureType   int    `yaml:"signature_type"` // 0 EOA, 1 proxy, 2 Gnosis Safe
	ChainID         int64  `yaml:"chain_id"`
	RPCURL          string `yaml:"rpc_url"`
	EnsureApprovals bool   `yaml:"ensure_approvals"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
}

// StorageConfig controla dónde se persiste el diario de ventanas.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// MergeConfig controla el merge on-chain de sets completos al cerrar una ventana.
type MergeConfig struct {
	Enabled   bool    `yaml:"enabled"`
	MinShares float64 `yaml:"min_shares"`
}

// LogConfig controla el formato, nivel y destino del logging.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`   // además de stdout, con rotación
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load carga la configuración desde el YAML (opcional si path está vacío) y el .env si existe.
// Las variables de entorno sobreescriben al YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	// Grace se siembra antes del YAML: un 0 explícito significa mitigar sin espera.
	cfg := Config{Risk: RiskConfig{Grace: defaultGrace}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %v: %w", err, domain.ErrConfiguration)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// PostOnly devuelve si las patas se envían post-only (true por defecto).
func (c *Config) PostOnly() bool {
	return c.Pair.PostOnly == nil || *c.Pair.PostOnly
}

// StartAt parsea schedule.start_at. Cero si no está definido.
func (c *Config) StartAt() (time.Time, error) {
	if c.Schedule.StartAt == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.Schedule.StartAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: start_at %q is not RFC3339: %w", c.Schedule.StartAt, domain.ErrConfiguration)
	}
	return t.UTC(), nil
}

// Validate comprueba la configuración antes de tocar ninguna API.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Pair.Price <= 0 || c.Pair.Price >= 1 {
		fail("pair.price must be in (0,1), got %v", c.Pair.Price)
	}
	if c.Pair.Price > 0 && c.Pair.Price < 1 {
		if err := domain.CheckPairEdge(c.Pair.Price, c.Pair.MinEdge); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Pair.Shares < 0 {
		fail("pair.shares must be >= 0, got %v", c.Pair.Shares)
	}
	if c.Pair.Shares == 0 && c.Pair.USD <= 0 {
		fail("one of pair.shares or pair.usd is required")
	}
	hasTokens := c.Pair.UpToken != "" && c.Pair.DownToken != ""
	if !hasTokens && c.Pair.Slug == "" {
		fail("pair.up_token and pair.down_token, or pair.slug, are required")
	}
	if (c.Pair.UpToken == "") != (c.Pair.DownToken == "") {
		fail("pair.up_token and pair.down_token go together")
	}
	if c.Schedule.UseSlugEpoch && c.Pair.Slug == "" {
		fail("schedule.use_slug_epoch needs pair.slug")
	}
	if _, err := c.StartAt(); err != nil {
		errs = append(errs, err)
	}
	if c.Schedule.Duration <= 0 {
		fail("schedule.duration must be > 0")
	}
	if c.Schedule.Repeat && c.Schedule.Period < c.Schedule.Duration {
		fail("schedule.period (%s) must be >= schedule.duration (%s) in repeat mode", c.Schedule.Period, c.Schedule.Duration)
	}
	if c.Schedule.MaxWindows < 0 {
		fail("schedule.max_windows must be >= 0")
	}
	if _, err := domain.ParsePolicy(c.Risk.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.Risk.Grace < 0 {
		fail("risk.grace must be >= 0")
	}
	if c.Risk.PollInterval <= 0 || c.Risk.MaxIdle <= 0 {
		fail("risk.poll_interval and risk.max_idle must be > 0")
	}
	if !c.DryRun && c.Wallet.PrivateKey == "" {
		fail("POLY_PRIVATE_KEY is required outside dry-run")
	}
	if c.Wallet.SignatureType < 0 || c.Wallet.SignatureType > 2 {
		fail("wallet.signature_type must be 0, 1 or 2, got %d", c.Wallet.SignatureType)
	}
	if c.Merge.Enabled && !c.DryRun && c.Wallet.RPCURL == "" {
		fail("merge.enabled needs POLYGON_RPC_URL")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		fail("log.format must be text or json, got %q", c.Log.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config.Validate: %w: %w", errors.Join(errs...), domain.ErrConfiguration)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"POLY_PRIVATE_KEY": &cfg.Wallet.PrivateKey,
		"POLY_FUNDER":      &cfg.Wallet.Funder,
		"POLYGON_RPC_URL":  &cfg.Wallet.RPCURL,
		"LOG_LEVEL":        &cfg.Log.Level,
		"LOG_FORMAT":       &cfg.Log.Format,
		"PAIRBOT_POLICY":   &cfg.Risk.Policy,
		"PAIRBOT_SLUG":     &cfg.Pair.Slug,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"PAIRBOT_PRICE":  &cfg.Pair.Price,
		"PAIRBOT_USD":    &cfg.Pair.USD,
		"PAIRBOT_SHARES": &cfg.Pair.Shares,
	}
	for key, dst := range floats {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %s=%q is not a number: %w", key, v, domain.ErrConfiguration)
		}
		*dst = f
	}

	if v := os.Getenv("POLY_SIGNATURE_TYPE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: POLY_SIGNATURE_TYPE=%q is not an integer: %w", v, domain.ErrConfiguration)
		}
		cfg.Wallet.SignatureType = n
	}
	if v := os.Getenv("PAIRBOT_EVENT_FEED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: PAIRBOT_EVENT_FEED=%q is not a bool: %w", v, domain.ErrConfiguration)
		}
		cfg.Feed.Enabled = b
	}
	return nil
}

const defaultGrace = 10 * time.Second

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Pair.PostOnly == nil {
		t := true
		cfg.Pair.PostOnly = &t
	}
	if cfg.Schedule.Duration <= 0 {
		cfg.Schedule.Duration = 15 * time.Minute
	}
	if cfg.Schedule.Period <= 0 {
		cfg.Schedule.Period = 15 * time.Minute
	}
	if cfg.Risk.Policy == "" {
		cfg.Risk.Policy = string(domain.PolicyWait)
	}
	cfg.Risk.Policy = strings.ToLower(cfg.Risk.Policy)
	if cfg.Risk.PollInterval <= 0 {
		cfg.Risk.PollInterval = 2 * time.Second
	}
	if cfg.Risk.MaxIdle <= 0 {
		cfg.Risk.MaxIdle = 10 * time.Second
	}
	if cfg.Risk.CloseTimeout <= 0 {
		cfg.Risk.CloseTimeout = 30 * time.Second
	}
	if cfg.Feed.URL == "" {
		cfg.Feed.URL = "wss://ws-subscriptions-clob.polymarket.com/ws/user"
	}
	if cfg.Wallet.ChainID == 0 {
		cfg.Wallet.ChainID = 137
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "pairbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 30
	}
}
