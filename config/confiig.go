package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mailnexy/internal/cryptutil"
	"mailnexy/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	Log       = logrus.New()
)

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// BandWeights controls the Schedule Planner's per-band allocation, per
// spec.md §6. Must sum to exactly 1.0 (see SPEC_FULL.md's Open Question
// decision) — checked in validate().
type BandWeights struct {
	Peak   float64
	Normal float64
	Low    float64
}

// Intervals controls every periodic worker's tick cadence, per spec.md §6.
type Intervals struct {
	Dispatch     time.Duration
	Engagement   time.Duration
	ReplyPoll    time.Duration
	SpamRecovery time.Duration
	Score        time.Duration
	DayAdvance   time.Duration
}

type PlanConfig struct {
	GraceWindow time.Duration
	FireWindow  time.Duration
	Retention   time.Duration
}

type EngagementConfig struct {
	OpenDelayMin    time.Duration
	OpenDelayMax    time.Duration
	ReplyDelayMin   time.Duration
	ReplyDelayMax   time.Duration
	StarProbability float64
}

type Config struct {
	Environment   string
	EncryptionKey string
	ServerPort    string

	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DBMaxIdleConns int
	DBMaxOpenConns int

	RedisAddress  string
	RedisPassword string
	RedisDB       int

	Google OAuthConfig

	JWTSecret string

	BusinessHoursStart int
	BusinessHoursEnd   int
	Bands              BandWeights
	Intervals          Intervals
	Plan               PlanConfig
	Engagement         EngagementConfig
	ScoreWindow        time.Duration

	// RateLimitTestMailbox bounds how often an operator can hit the
	// mailbox test-send endpoint per minute, mirroring the teacher's
	// sender test-rate-limit knob.
	RateLimitTestMailbox int
}

// RedisEnabled reports whether a Redis address is configured, used to pick
// between Redis-backed and in-memory rate-limit storage.
func (c Config) RedisEnabled() bool {
	return c.RedisAddress != ""
}

// LoadConfig reads configuration via viper (env vars take precedence,
// falling back to a .env file per the teacher's godotenv convention),
// validates it, and sets models.EncryptionKey so the CredentialBundle
// Valuer/Scanner can seal/open without importing config.
func LoadConfig() error {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("server_port", "5000")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_name", "mailnexy")
	v.SetDefault("db_ssl_mode", "disable")
	v.SetDefault("db_max_idle_conns", 10)
	v.SetDefault("db_max_open_conns", 100)
	v.SetDefault("redis_address", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("business_hours_start", 9)
	v.SetDefault("business_hours_end", 18)
	v.SetDefault("bands_peak_weight", 0.60)
	v.SetDefault("bands_normal_weight", 0.30)
	v.SetDefault("bands_low_weight", 0.10)
	v.SetDefault("dispatch_interval", "2m")
	v.SetDefault("engagement_interval", "3m")
	v.SetDefault("reply_poll_interval", "5m")
	v.SetDefault("spam_recovery_interval", "6h")
	v.SetDefault("score_interval", "6h")
	v.SetDefault("day_advance_interval", "1h")
	v.SetDefault("plan_grace_window", "5m")
	v.SetDefault("plan_fire_window", "2m")
	v.SetDefault("plan_retention", "168h")
	v.SetDefault("engagement_open_delay_min", "30s")
	v.SetDefault("engagement_open_delay_max", "10m")
	v.SetDefault("engagement_reply_delay_min", "5m")
	v.SetDefault("engagement_reply_delay_max", "30m")
	v.SetDefault("engagement_star_probability", 0.20)
	v.SetDefault("score_window", "720h")
	v.SetDefault("rate_limit_test_mailbox", 5)

	AppConfig = Config{
		Environment:   v.GetString("environment"),
		EncryptionKey: v.GetString("encryption_key"),
		ServerPort:    v.GetString("server_port"),

		DBHost:         v.GetString("db_host"),
		DBPort:         v.GetString("db_port"),
		DBUser:         v.GetString("db_user"),
		DBPassword:     v.GetString("db_password"),
		DBName:         v.GetString("db_name"),
		DBSSLMode:      v.GetString("db_ssl_mode"),
		DBMaxIdleConns: v.GetInt("db_max_idle_conns"),
		DBMaxOpenConns: v.GetInt("db_max_open_conns"),

		RedisAddress:  v.GetString("redis_address"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		Google: OAuthConfig{
			ClientID:     v.GetString("google_client_id"),
			ClientSecret: v.GetString("google_client_secret"),
			RedirectURI:  v.GetString("google_redirect_uri"),
		},

		JWTSecret: v.GetString("jwt_secret"),

		BusinessHoursStart: v.GetInt("business_hours_start"),
		BusinessHoursEnd:   v.GetInt("business_hours_end"),
		Bands: BandWeights{
			Peak:   v.GetFloat64("bands_peak_weight"),
			Normal: v.GetFloat64("bands_normal_weight"),
			Low:    v.GetFloat64("bands_low_weight"),
		},
		Intervals: Intervals{
			Dispatch:     v.GetDuration("dispatch_interval"),
			Engagement:   v.GetDuration("engagement_interval"),
			ReplyPoll:    v.GetDuration("reply_poll_interval"),
			SpamRecovery: v.GetDuration("spam_recovery_interval"),
			Score:        v.GetDuration("score_interval"),
			DayAdvance:   v.GetDuration("day_advance_interval"),
		},
		Plan: PlanConfig{
			GraceWindow: v.GetDuration("plan_grace_window"),
			FireWindow:  v.GetDuration("plan_fire_window"),
			Retention:   v.GetDuration("plan_retention"),
		},
		Engagement: EngagementConfig{
			OpenDelayMin:    v.GetDuration("engagement_open_delay_min"),
			OpenDelayMax:    v.GetDuration("engagement_open_delay_max"),
			ReplyDelayMin:   v.GetDuration("engagement_reply_delay_min"),
			ReplyDelayMax:   v.GetDuration("engagement_reply_delay_max"),
			StarProbability: v.GetFloat64("engagement_star_probability"),
		},
		ScoreWindow: v.GetDuration("score_window"),

		RateLimitTestMailbox: v.GetInt("rate_limit_test_mailbox"),
	}

	if err := validate(); err != nil {
		return err
	}

	models.EncryptionKey = AppConfig.EncryptionKey
	logConfig()
	return nil
}

func validate() error {
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	sum := AppConfig.Bands.Peak + AppConfig.Bands.Normal + AppConfig.Bands.Low
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("bands.peak_weight + normal_weight + low_weight must sum to exactly 1.0, got %v", sum)
	}

	if AppConfig.Environment == "production" && AppConfig.Google.ClientID == "" {
		return fmt.Errorf("google OAuth credentials are required in production")
	}
	return nil
}

func ConnectDB() error {
	Log.Info("attempting to connect to database")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	Log.WithField("dsn", maskPassword(dsn)).Info("connecting")

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	Log.Info("connected to database")
	Log.Info("starting database migration")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	Log.Info("database migration complete")
	return nil
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	Log.Info("loaded configuration")
	Log.WithFields(logrus.Fields{
		"environment":  AppConfig.Environment,
		"server_port":  AppConfig.ServerPort,
		"db":           fmt.Sprintf("%s@%s:%s/%s", AppConfig.DBUser, AppConfig.DBHost, AppConfig.DBPort, AppConfig.DBName),
		"google_oauth": AppConfig.Google.ClientID != "",
	}).Info("config summary")
}

// VerifyEncryptionKey round-trips a throwaway value through cryptutil to
// fail fast at startup if ENCRYPTION_KEY is unusable, rather than letting
// the first Mailbox write surface the error deep in a worker tick.
func VerifyEncryptionKey() error {
	sealed, err := cryptutil.Seal(AppConfig.EncryptionKey, "startup-check")
	if err != nil {
		return fmt.Errorf("encryption key self-check failed: %w", err)
	}
	opened, err := cryptutil.Open(AppConfig.EncryptionKey, sealed)
	if err != nil || opened != "startup-check" {
		return fmt.Errorf("encryption key self-check failed to round-trip")
	}
	return nil
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Mailbox{},
		&models.PlanEntry{},
		&models.Message{},
		&models.SpamEvent{},
	)
}
