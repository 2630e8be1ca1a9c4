package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration parameters read from environment variables.
type Config struct {
	// DBDriver selects the relational store: "sqlite" keeps the whole
	// catalog in a single file, "postgres" is for shared deployments.
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath   string `envconfig:"DB_PATH" default:"data/library.db"`

	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"8080"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// ETL input. RawDataDir holds the CSV extracts; when the S3 settings
	// are present the extracts are downloaded there first.
	RawDataDir   string `envconfig:"RAW_DATA_DIR" default:"data/raw"`
	BooksCSV     string `envconfig:"BOOKS_CSV" default:"books.csv"`
	CopiesCSV    string `envconfig:"COPIES_CSV" default:"copies.csv"`
	UsersCSV     string `envconfig:"USERS_CSV" default:"user_info.csv"`
	RatingsCSV   string `envconfig:"RATINGS_CSV" default:"ratings.csv"`
	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`
	EtlOnStart   bool   `envconfig:"ETL_ON_START" default:"false"`

	// AgeReferenceYear anchors the age computation for cohort queries.
	// Zero means "use the current year".
	AgeReferenceYear int `envconfig:"AGE_REFERENCE_YEAR" default:"0"`

	S3Key    string `envconfig:"S3_KEY"`
	S3Secret string `envconfig:"S3_SECRET"`
	S3URL    string `envconfig:"S3_URL"`
	S3Region string `envconfig:"S3_REGION"`
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"extracts"`
}

// DSN returns the Data Source Name for the PostgreSQL connection.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// S3Enabled reports whether the ETL should talk to object storage at all.
func (c *Config) S3Enabled() bool {
	return c.S3URL != "" && c.S3Bucket != ""
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
