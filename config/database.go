package config

import (
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// DatabaseDSN builds the MySQL DSN from DB_HOST, DB_PORT, DB_DATABASE, DB_USERNAME and DB_PASSWORD.
func DatabaseDSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.User = os.Getenv("DB_USERNAME")
	cfg.Passwd = os.Getenv("DB_PASSWORD")
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(getenvDefault("DB_HOST", "127.0.0.1"), getenvDefault("DB_PORT", "3306"))
	cfg.DBName = os.Getenv("DB_DATABASE")
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

func InitDB() {
	environment := strings.ToLower(os.Getenv("ENVIRONMENT"))
	debugSQL := strings.ToLower(os.Getenv("DEBUG_SQL"))

	// Production keeps SQL quiet unless DEBUG_SQL=true.
	logLevel := logger.Info
	if environment == "production" && debugSQL != "true" {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(mysql.Open(DatabaseDSN()), NewGormConfig(logLevel))
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to access database pool:", err)
	}
	sqlDB.SetMaxOpenConns(envInt("DB_MAX_OPEN_CONNS", 25))
	sqlDB.SetMaxIdleConns(envInt("DB_MAX_IDLE_CONNS", 10))
	sqlDB.SetConnMaxLifetime(time.Duration(envInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute)

	DB = db
	log.Println("Database connected successfully")
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// NewGormConfig builds the gorm configuration shared by the server, the tools and the tests.
// TranslateError makes duplicate key violations surface as gorm.ErrDuplicatedKey.
func NewGormConfig(level logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: logger.New(
			log.New(LogWriter, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  level,
				SlowThreshold:             500 * time.Millisecond,
				IgnoreRecordNotFoundError: true,
			},
		),
	}
}
