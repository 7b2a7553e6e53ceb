package kernel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AppRuntime struct {
	Host string

	ServiceName           string
	ServiceVersion        string
	DeploymentEnvironment string
	LogLevel              string

	DatabaseDriver string
	DatabaseDSN    string
	DatabaseClient *gorm.DB

	TracingEnabled      bool
	JaegerEndpoint      string
	MetricsExporter     string
	OtlpMetricsEndpoint string

	ApiKeyHash  string
	CorsOrigins []string

	WebhookSecret         string
	WebhookMissingPayment string

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	RatesFile            string
	SourceCurrency       string
	IntermediateCurrency string
	DestinationCurrency  string

	MaxPaymentAmount       decimal.Decimal
	SettlementSLA          time.Duration
	SettlementConfirmDelay time.Duration
	PipelineWorkers        int
	PipelineQueue          int

	FeeOnrampBps  int64
	FeeOfframpBps int64
	FeePayoutBps  int64

	Diagnostic *AppDiagnostic
	Logger     zerolog.Logger

	Context context.Context
}

// LoadConfig reads .env.<API_ENV> when present; process environment variables
// take precedence over the file.
func LoadConfig() (*AppRuntime, error) {
	appEnv := os.Getenv("API_ENV")
	if appEnv == "" {
		appEnv = "development"
	}

	env, err := godotenv.Read(".env." + appEnv)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading .env.%s: %w", appEnv, err)
		}
		env = map[string]string{}
	}
	return FromEnv(func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return env[key]
	})
}

// FromEnv builds a runtime from a key lookup, applying defaults.
func FromEnv(get func(string) string) (*AppRuntime, error) {
	p := &envParser{get: get}

	art := &AppRuntime{
		Host: p.str("HOST", ":8080"),

		ServiceName:           p.str("SERVICE_NAME", "payout-api"),
		ServiceVersion:        p.str("SERVICE_VERSION", "dev"),
		DeploymentEnvironment: p.str("DEPLOY_ENV", "development"),
		LogLevel:              p.str("LOG_LEVEL", "info"),

		DatabaseDriver: p.str("DATABASE_DRIVER", "mysql"),
		DatabaseDSN:    p.str("DATABASE_DSN", ""),

		TracingEnabled:      p.str("TRACING_ENABLED", "false") == "true",
		JaegerEndpoint:      p.str("JAEGER_ENDPOINT", "localhost:4318"),
		MetricsExporter:     p.str("METRICS_EXPORTER", "prometheus"),
		OtlpMetricsEndpoint: p.str("OTLP_METRICS_ENDPOINT", "localhost:4318"),

		ApiKeyHash: strings.ToLower(p.str("API_KEY_HASH", "")),

		WebhookSecret:         p.str("WEBHOOK_SECRET", ""),
		WebhookMissingPayment: p.str("WEBHOOK_MISSING_PAYMENT", "tolerate"),

		RedisAddr:  p.str("REDIS_ADDR", ""),
		KafkaTopic: p.str("KAFKA_TOPIC", "payments.events"),

		RatesFile:            p.str("RATES_FILE", ""),
		SourceCurrency:       strings.ToUpper(p.str("SOURCE_CURRENCY", "SGD")),
		IntermediateCurrency: strings.ToUpper(p.str("INTERMEDIATE_CURRENCY", "USDC")),
		DestinationCurrency:  strings.ToUpper(p.str("DESTINATION_CURRENCY", "USD")),

		MaxPaymentAmount:       p.decimal("MAX_PAYMENT_AMOUNT", "1000000"),
		SettlementSLA:          p.duration("SETTLEMENT_SLA", "30m"),
		SettlementConfirmDelay: p.duration("SETTLEMENT_CONFIRM_DELAY", "2s"),
		PipelineWorkers:        int(p.int("PIPELINE_WORKERS", "8")),
		PipelineQueue:          int(p.int("PIPELINE_QUEUE", "1024")),

		FeeOnrampBps:  p.int("FEE_ONRAMP_BPS", "50"),
		FeeOfframpBps: p.int("FEE_OFFRAMP_BPS", "30"),
		FeePayoutBps:  p.int("FEE_PAYOUT_BPS", "10"),

		Context: context.Background(),
	}

	art.KafkaBrokers = p.list("KAFKA_BROKERS")
	art.CorsOrigins = p.list("CORS_ORIGINS")

	if p.err != nil {
		return nil, p.err
	}
	if err := art.validate(); err != nil {
		return nil, err
	}

	art.Logger = NewLogger(art.LogLevel, art.IsProduction())

	diag, err := NewDiagnostic(art.ServiceName)
	if err != nil {
		return nil, err
	}
	art.Diagnostic = diag
	return art, nil
}

func (art *AppRuntime) validate() error {
	switch art.DatabaseDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER: unsupported driver %q", art.DatabaseDriver)
	}
	switch art.MetricsExporter {
	case "prometheus", "otlphttp", "otlpgrpc":
	default:
		return fmt.Errorf("METRICS_EXPORTER: unsupported exporter %q", art.MetricsExporter)
	}
	switch art.WebhookMissingPayment {
	case "tolerate", "surface":
	default:
		return fmt.Errorf("WEBHOOK_MISSING_PAYMENT: must be tolerate or surface, got %q", art.WebhookMissingPayment)
	}
	for _, origin := range art.CorsOrigins {
		if !strings.HasPrefix(origin, "https://") && !strings.HasPrefix(origin, "http://") {
			return fmt.Errorf("CORS_ORIGINS: origin %q must start with http:// or https://", origin)
		}
	}
	if !art.MaxPaymentAmount.IsPositive() {
		return fmt.Errorf("MAX_PAYMENT_AMOUNT: must be positive")
	}
	for key, bps := range map[string]int64{
		"FEE_ONRAMP_BPS":  art.FeeOnrampBps,
		"FEE_OFFRAMP_BPS": art.FeeOfframpBps,
		"FEE_PAYOUT_BPS":  art.FeePayoutBps,
	} {
		if bps < 0 || bps >= 10000 {
			return fmt.Errorf("%s: must be within [0, 10000), got %d", key, bps)
		}
	}
	return nil
}

func (art *AppRuntime) IsProduction() bool {
	return art.DeploymentEnvironment == "production"
}

type envParser struct {
	get func(string) string
	err error
}

func (p *envParser) str(key, def string) string {
	if v := strings.TrimSpace(p.get(key)); v != "" {
		return v
	}
	return def
}

func (p *envParser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
}

// list splits a comma separated value, dropping empty entries.
func (p *envParser) list(key string) []string {
	var out []string
	for _, v := range strings.Split(p.str(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (p *envParser) int(key, def string) int64 {
	n, err := strconv.ParseInt(p.str(key, def), 10, 64)
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *envParser) duration(key, def string) time.Duration {
	d, err := time.ParseDuration(p.str(key, def))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

func (p *envParser) decimal(key, def string) decimal.Decimal {
	d, err := decimal.NewFromString(p.str(key, def))
	if err != nil {
		p.fail(key, err)
	}
	return d
}
