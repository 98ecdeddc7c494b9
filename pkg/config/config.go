package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Supported store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

// Supported e-mail providers.
const (
	EmailProviderConsole  = "console"
	EmailProviderSendgrid = "sendgrid"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	StoreDriver string

	Database      DatabaseConfig
	Mongo         MongoConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Clearance     ClearanceConfig
	Departments   DepartmentsConfig
	Certificates  CertificatesConfig
	Email         EmailConfig
	Notifications NotificationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// MongoConfig points the document store at a MongoDB deployment.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ClearanceConfig tunes the clearance workflow.
type ClearanceConfig struct {
	BlockingStatuses []string
	WritePolicy      string
	StatusRetries    int
}

// DepartmentsConfig seeds and caches the department registry.
type DepartmentsConfig struct {
	DefaultKeys []string
	CacheTTL    time.Duration
}

// CertificatesConfig controls certificate storage and download links.
type CertificatesConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	IssuerName      string
}

// EmailConfig selects the outbound mail provider.
type EmailConfig struct {
	Provider       string
	SendgridAPIKey string
	FromAddress    string
	FromName       string
}

// NotificationsConfig sizes the notification worker pool.
type NotificationsConfig struct {
	Enabled    bool
	Workers    int
	MaxRetries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER")))

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Mongo = MongoConfig{
		URI:            v.GetString("MONGO_URI"),
		Database:       v.GetString("MONGO_DATABASE"),
		ConnectTimeout: parseDuration(v.GetString("MONGO_CONNECT_TIMEOUT"), 10*time.Second),
		MaxPoolSize:    uint64(v.GetInt("MONGO_MAX_POOL_SIZE")),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Clearance = ClearanceConfig{
		BlockingStatuses: splitAndTrim(strings.ToUpper(v.GetString("CLEARANCE_BLOCKING_STATUSES"))),
		WritePolicy:      strings.TrimSpace(v.GetString("CLEARANCE_WRITE_POLICY")),
		StatusRetries:    v.GetInt("CLEARANCE_STATUS_RETRIES"),
	}

	cfg.Departments = DepartmentsConfig{
		DefaultKeys: splitAndTrim(strings.ToLower(v.GetString("CLEARANCE_DEFAULT_DEPARTMENTS"))),
		CacheTTL:    parseDuration(v.GetString("DEPARTMENTS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Certificates = CertificatesConfig{
		StorageDir:      v.GetString("CERTIFICATES_STORAGE_DIR"),
		SignedURLSecret: v.GetString("CERTIFICATES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("CERTIFICATES_SIGNED_URL_TTL"), time.Hour),
		IssuerName:      v.GetString("CERTIFICATES_ISSUER_NAME"),
	}

	cfg.Email = EmailConfig{
		Provider:       strings.ToLower(strings.TrimSpace(v.GetString("EMAIL_PROVIDER"))),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromAddress:    v.GetString("EMAIL_FROM_ADDRESS"),
		FromName:       v.GetString("EMAIL_FROM_NAME"),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:    v.GetBool("ENABLE_NOTIFICATIONS"),
		Workers:    v.GetInt("NOTIFICATIONS_WORKERS"),
		MaxRetries: v.GetInt("NOTIFICATIONS_MAX_RETRIES"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "nodues")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "nodues")
	v.SetDefault("MONGO_CONNECT_TIMEOUT", "10s")
	v.SetDefault("MONGO_MAX_POOL_SIZE", 50)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "nodues-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CLEARANCE_BLOCKING_STATUSES", "PENDING")
	v.SetDefault("CLEARANCE_WRITE_POLICY", "")
	v.SetDefault("CLEARANCE_STATUS_RETRIES", 5)
	v.SetDefault("CLEARANCE_DEFAULT_DEPARTMENTS", "library,accounts,hostel,department")
	v.SetDefault("DEPARTMENTS_CACHE_TTL", "5m")

	v.SetDefault("CERTIFICATES_STORAGE_DIR", "./certificates")
	v.SetDefault("CERTIFICATES_SIGNED_URL_SECRET", "dev_certificates_secret")
	v.SetDefault("CERTIFICATES_SIGNED_URL_TTL", "1h")
	v.SetDefault("CERTIFICATES_ISSUER_NAME", "Office of the Registrar")

	v.SetDefault("EMAIL_PROVIDER", EmailProviderConsole)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_FROM_ADDRESS", "no-reply@college.local")
	v.SetDefault("EMAIL_FROM_NAME", "No-Dues Office")

	v.SetDefault("ENABLE_NOTIFICATIONS", true)
	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_MAX_RETRIES", 3)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
