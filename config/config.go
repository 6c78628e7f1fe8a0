// server/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// --- Sub structs, mirroring config.yaml ---

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// StorageConfig selects the safe zone store: "mongo" or "memory".
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type MongoConfig struct {
	URI     string        `mapstructure:"uri"`
	DBName  string        `mapstructure:"dbName"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	Expiration string `mapstructure:"expiration"`
}

type S3Config struct {
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
}

func (c S3Config) Enabled() bool { return c.Bucket != "" && c.Region != "" }

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	StatsTTL time.Duration `mapstructure:"statsTTL"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LocationSearchConfig struct {
	BaseURL      string        `mapstructure:"baseURL"`
	UserAgent    string        `mapstructure:"userAgent"`
	CountryCodes string        `mapstructure:"countryCodes"`
	CacheSize    int           `mapstructure:"cacheSize"`
	CacheTTL     time.Duration `mapstructure:"cacheTTL"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// AdminConfig is the account seeded when no super admin exists.
type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type SeedConfig struct {
	SampleZones bool `mapstructure:"sampleZones"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allowOrigins"`
}

// --- Main Config struct ---

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Mongo          MongoConfig          `mapstructure:"mongo"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	S3             S3Config             `mapstructure:"s3"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	LocationSearch LocationSearchConfig `mapstructure:"locationSearch"`
	RateLimit      RateLimitConfig      `mapstructure:"rateLimit"`
	Admin          AdminConfig          `mapstructure:"admin"`
	Seed           SeedConfig           `mapstructure:"seed"`
	Log            LogConfig            `mapstructure:"log"`
	CORS           CORSConfig           `mapstructure:"cors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "15s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("storage.driver", "mongo")
	v.SetDefault("mongo.dbName", "disaster_alert")
	v.SetDefault("mongo.timeout", "5s")
	v.SetDefault("jwt.expiration", "24h")
	v.SetDefault("redis.statsTTL", "30s")
	v.SetDefault("kafka.topic", "safezone-events")
	v.SetDefault("locationSearch.baseURL", "https://nominatim.openstreetmap.org")
	v.SetDefault("locationSearch.userAgent", "safezone-api-server/1.0")
	v.SetDefault("locationSearch.countryCodes", "lk")
	v.SetDefault("locationSearch.cacheSize", 100)
	v.SetDefault("locationSearch.cacheTTL", "1h")
	v.SetDefault("locationSearch.timeout", "5s")
	v.SetDefault("rateLimit.rps", 5)
	v.SetDefault("rateLimit.burst", 10)
	v.SetDefault("admin.email", "superadmin@example.com")
	v.SetDefault("admin.name", "Super Admin")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("cors.allowOrigins", []string{"*"})
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "GIN_MODE")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("mongo.uri", "MONGO_URI")
	v.BindEnv("mongo.dbName", "MONGO_DBNAME")
	v.BindEnv("mongo.timeout", "MONGO_TIMEOUT")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	v.BindEnv("s3.bucket", "S3_BUCKET")
	v.BindEnv("s3.region", "S3_REGION")
	v.BindEnv("s3.accessKeyID", "S3_ACCESS_KEY_ID")
	v.BindEnv("s3.secretAccessKey", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("s3.cloudFrontDomain", "S3_CLOUDFRONT_DOMAIN")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.statsTTL", "REDIS_STATS_TTL")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("locationSearch.baseURL", "LOCATION_SEARCH_URL")
	v.BindEnv("locationSearch.cacheSize", "LOCATION_CACHE_SIZE")
	v.BindEnv("locationSearch.cacheTTL", "LOCATION_CACHE_TTL")
	v.BindEnv("rateLimit.rps", "RATE_LIMIT_RPS")
	v.BindEnv("rateLimit.burst", "RATE_LIMIT_BURST")
	v.BindEnv("admin.email", "ADMIN_EMAIL")
	v.BindEnv("admin.password", "ADMIN_PASSWORD")
	v.BindEnv("seed.sampleZones", "SEED_SAMPLE_ZONES")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
	v.BindEnv("cors.allowOrigins", "CORS_ALLOW_ORIGINS")
}

// LoadConfig reads config.yaml from path (optional) and overrides it with
// environment variables. A .env file in the working directory is loaded first.
func LoadConfig(path string) (config Config, err error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)
	bindEnv(v)

	// Only environment variables are used when the file is missing.
	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config, fmt.Errorf("read config: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}

	config.Storage.Driver = strings.ToLower(strings.TrimSpace(config.Storage.Driver))
	return config, config.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "mongo":
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo.uri is required when storage.driver is mongo"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be mongo or memory, got %q", c.Storage.Driver))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if _, err := time.ParseDuration(c.JWT.Expiration); err != nil {
		errs = append(errs, fmt.Errorf("jwt.expiration: %w", err))
	}
	if c.LocationSearch.CacheSize <= 0 {
		errs = append(errs, errors.New("locationSearch.cacheSize must be positive"))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rateLimit.rps and rateLimit.burst must be positive"))
	}
	return errors.Join(errs...)
}
