// Пакет config — загрузка и валидация конфигурации Admin Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Admin Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL (журнал аудита) ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Blood Service ---

	// Базовый URL Blood Service (например, https://blood-service:3000)
	BloodServiceURL string
	// Путь к CA-сертификату для TLS-соединений с Blood Service (опционально)
	BloodServiceCACertPath string
	// Таймаут HTTP-запросов к Blood Service
	BloodServiceTimeout time.Duration

	// --- JWT / сессия ---

	// URL JWKS endpoint провайдера аутентификации
	JWTJWKSURL string
	// Issuer JWT (пустой — issuer не проверяется)
	JWTIssuer string
	// Допуск рассинхронизации часов при проверке exp/iat
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента загрузки JWKS
	JWKSClientTimeout time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Имя cookie с токеном сессии
	SessionCookie string

	// --- Кэш каталога пользователей ---

	// TTL кэша каталога пользователей
	UserCacheTTL time.Duration
	// Максимальный размер кэша (записей)
	UserCacheSize int

	// --- Topologymetrics ---

	// Группа сервиса в топологии
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// AM_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("AM_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("AM_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("AM_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// AM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AM_LOG_LEVEL: %w", err)
	}

	// AM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// AM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("AM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// AM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("AM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("AM_DB_PORT: %w", err)
	}

	// AM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("AM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// AM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("AM_DB_USER")
	if err != nil {
		return nil, err
	}

	// AM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("AM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// AM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("AM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("AM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Blood Service ---

	// AM_BLOOD_SERVICE_URL — обязательный
	cfg.BloodServiceURL, err = getEnvRequired("AM_BLOOD_SERVICE_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.BloodServiceURL = strings.TrimRight(cfg.BloodServiceURL, "/")

	// AM_BLOOD_SERVICE_CA_CERT_PATH — путь к CA-сертификату (опционально)
	cfg.BloodServiceCACertPath = getEnvDefault("AM_BLOOD_SERVICE_CA_CERT_PATH", "")

	// AM_BLOOD_SERVICE_TIMEOUT — таймаут запросов (по умолчанию 10s)
	cfg.BloodServiceTimeout, err = getEnvDuration("AM_BLOOD_SERVICE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AM_BLOOD_SERVICE_TIMEOUT: %w", err)
	}

	// --- JWT / сессия ---

	// AM_JWT_JWKS_URL — обязательный
	cfg.JWTJWKSURL, err = getEnvRequired("AM_JWT_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// AM_JWT_ISSUER — опционально; пустой отключает проверку issuer
	cfg.JWTIssuer = getEnvDefault("AM_JWT_ISSUER", "")

	// AM_JWT_LEEWAY — допуск рассинхронизации часов (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("AM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AM_JWT_LEEWAY: %w", err)
	}

	// AM_JWKS_CLIENT_TIMEOUT — таймаут клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("AM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AM_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// AM_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 1h)
	cfg.JWKSRefreshInterval, err = getEnvDuration("AM_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// AM_SESSION_COOKIE — имя cookie сессии (по умолчанию authToken)
	cfg.SessionCookie = getEnvDefault("AM_SESSION_COOKIE", "authToken")

	// --- Кэш каталога пользователей ---

	// AM_USER_CACHE_TTL — TTL кэша каталога (по умолчанию 1m)
	cfg.UserCacheTTL, err = getEnvDuration("AM_USER_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AM_USER_CACHE_TTL: %w", err)
	}

	// AM_USER_CACHE_SIZE — размер кэша (по умолчанию 128)
	cfg.UserCacheSize, err = getEnvInt("AM_USER_CACHE_SIZE", 128)
	if err != nil {
		return nil, fmt.Errorf("AM_USER_CACHE_SIZE: %w", err)
	}
	if cfg.UserCacheSize < 1 || cfg.UserCacheSize > 100000 {
		return nil, fmt.Errorf("AM_USER_CACHE_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.UserCacheSize)
	}

	// --- Topologymetrics ---

	// AM_DEPHEALTH_GROUP — группа сервиса в топологии (по умолчанию blooddon)
	cfg.DephealthGroup = getEnvDefault("AM_DEPHEALTH_GROUP", "blooddon")

	// AM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("AM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// AM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("AM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL
// (используется topologymetrics для лейблов зависимости).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
