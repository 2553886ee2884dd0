package helper

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the Postgres connection parameters. They are
// read from the environment once at startup.
type DatabaseConfiguration struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewDatabaseConfiguration reads the connection parameters from the
// environment. A .env file in the working directory is loaded first if
// present.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	_ = godotenv.Load()

	config := &DatabaseConfiguration{
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  os.Getenv("DB_SSLMODE"),
	}

	if config.Host == "" {
		return nil, fmt.Errorf("DB_HOST is not set")
	}
	if config.Port == "" {
		return nil, fmt.Errorf("DB_PORT is not set")
	}
	if config.User == "" {
		return nil, fmt.Errorf("DB_USER is not set")
	}
	if config.DBName == "" {
		return nil, fmt.Errorf("DB_NAME is not set")
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	return config, nil
}

// ConnectionString renders the lib/pq connection string.
func (c *DatabaseConfiguration) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Database wraps the sql.DB connection with the shared logger.
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens the connection and pings it. It panics on connection
// failure since nothing can be served without a database.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		logger.Error("error opening database connection", slog.Any("error", err))
		panic(err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.Error("error pinging database", slog.Any("error", err))
		panic(err)
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host))

	return &Database{
		Name:     name,
		Instance: db,
		Logger:   logger,
	}
}
