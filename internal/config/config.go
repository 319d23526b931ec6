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
)

// ConfigPath is the default config location. CONFIG_PATH overrides it.
const ConfigPath = "config.yaml"

// DotEnvPath is loaded into the environment before overrides apply, when it
// exists. ENV_FILE overrides it. Variables already set are kept.
const DotEnvPath = ".env"

const (
	defaultSetupCredits   = 1000
	defaultQuizQuestions  = 10
	defaultMaxImageBytes  = 5 << 20
	defaultGuestbookLimit = 100
)

// Costs is the token price of each AI mode. A nil field takes the default.
type Costs struct {
	Chat      *int64 `yaml:"chat"`
	Quiz      *int64 `yaml:"quiz"`
	Synergy   *int64 `yaml:"synergy"`
	Translate *int64 `yaml:"translate"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	GenerationProvider string `yaml:"generationProvider"`
	GeminiAPIKey       string `yaml:"geminiAPIKey"`
	GenerationModel    string `yaml:"generationModel"`
	GenerationBaseURL  string `yaml:"generationBaseURL"`
	GenerationAPIKey   string `yaml:"generationAPIKey"`

	AuthJWKSURL      string   `yaml:"authJwksURL"`
	JWTIssuer        string   `yaml:"jwtIssuer"`
	JWTAudience      string   `yaml:"jwtAudience"`
	JWTLeeway        string   `yaml:"jwtLeeway"`
	SuperAdminEmails []string `yaml:"superAdminEmails"`

	AllowedOrigins    []string `yaml:"allowedOrigins"`
	RedisAddr         string   `yaml:"redisAddr"`
	RedisPassword     string   `yaml:"redisPassword"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`

	ChatRateLimitPerMinute      int `yaml:"chatRateLimitPerMinute"`
	AIRateLimitPerMinute        int `yaml:"aiRateLimitPerMinute"`
	GuestbookRateLimitPerMinute int `yaml:"guestbookRateLimitPerMinute"`

	RabbitMQURL   string `yaml:"rabbitmqURL"`
	RabbitMQQueue string `yaml:"rabbitmqQueue"`
	NotifyStream  string `yaml:"notifyStream"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	MinioPublicURL string `yaml:"minioPublicURL"`
	UploadDir      string `yaml:"uploadDir"`
	PublicBaseURL  string `yaml:"publicBaseURL"`
	MaxImageBytes  int64  `yaml:"maxImageBytes"`

	SetupCredits   int64 `yaml:"setupCredits"`
	QuizQuestions  int   `yaml:"quizQuestions"`
	GuestbookLimit int   `yaml:"guestbookLimit"`
	Costs          Costs `yaml:"costs"`
}

// Load reads config from path (defaults to CONFIG_PATH, then config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := loadDotEnv(); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = DotEnvPath
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GENERATION_PROVIDER"); v != "" {
		cfg.GenerationProvider = v
	}
	if v := os.Getenv("GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("GENERATION_BASE_URL"); v != "" {
		cfg.GenerationBaseURL = v
	}
	if v := os.Getenv("GENERATION_API_KEY"); v != "" {
		cfg.GenerationAPIKey = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		cfg.AuthJWKSURL = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("SUPER_ADMIN_EMAILS"); v != "" {
		cfg.SuperAdminEmails = splitCSV(v)
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	setInt(&cfg.ChatRateLimitPerMinute, "CHAT_RATE_LIMIT_PER_MINUTE")
	setInt(&cfg.AIRateLimitPerMinute, "AI_RATE_LIMIT_PER_MINUTE")
	setInt(&cfg.GuestbookRateLimitPerMinute, "GUESTBOOK_RATE_LIMIT_PER_MINUTE")
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.RabbitMQURL = v
	}
	if v := os.Getenv("RABBITMQ_QUEUE"); v != "" {
		cfg.RabbitMQQueue = v
	}
	if v := os.Getenv("NOTIFY_STREAM"); v != "" {
		cfg.NotifyStream = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("MINIO_PUBLIC_URL"); v != "" {
		cfg.MinioPublicURL = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = v
	}
	if v := os.Getenv("MAX_IMAGE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxImageBytes = n
		}
	}
	if v := os.Getenv("SETUP_CREDITS"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.SetupCredits = n
		}
	}
	setInt(&cfg.QuizQuestions, "QUIZ_QUESTIONS")
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.SetupCredits == 0 {
		cfg.SetupCredits = defaultSetupCredits
	}
	if cfg.QuizQuestions == 0 {
		cfg.QuizQuestions = defaultQuizQuestions
	}
	if cfg.MaxImageBytes == 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	if cfg.GuestbookLimit == 0 {
		cfg.GuestbookLimit = defaultGuestbookLimit
	}
	for i, email := range cfg.SuperAdminEmails {
		cfg.SuperAdminEmails[i] = strings.ToLower(strings.TrimSpace(email))
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
		return errors.New("config: authJwksURL is required (set in config.yaml or AUTH_JWKS_URL)")
	}
	if len(cfg.SuperAdminEmails) == 0 {
		return errors.New("config: superAdminEmails needs at least one address")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	if cfg.ChatRateLimitPerMinute < 0 || cfg.AIRateLimitPerMinute < 0 || cfg.GuestbookRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.SetupCredits < 0 || cfg.QuizQuestions < 0 || cfg.MaxImageBytes < 0 {
		return errors.New("config: setupCredits, quizQuestions and maxImageBytes must be >= 0")
	}
	for _, c := range []*int64{cfg.Costs.Chat, cfg.Costs.Quiz, cfg.Costs.Synergy, cfg.Costs.Translate} {
		if c != nil && *c < 0 {
			return errors.New("config: costs must be >= 0")
		}
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return err
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

// CostOr returns *c, or fallback when unset.
func CostOr(c *int64, fallback int64) int64 {
	if c == nil {
		return fallback
	}
	return *c
}
