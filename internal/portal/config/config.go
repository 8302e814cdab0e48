// Конфигурация портала из переменных окружения.
//
// Основные возможности:
//   - Загрузка конфигурации по тегам env у полей структуры.
//   - Проверка обязательного WEB_URL.
//   - Маскировка секретов (ключи, пароли, токены) в логах.
//   - Значения по умолчанию для задержки автосохранения, размеров изображений и выгрузок.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"
)

// Драйверы хранилищ и баз данных.
const (
	StorageMinio    = "minio"
	StorageSupabase = "supabase"
	StorageLocal    = "local"

	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

type Config struct {
	WebURLRaw  string `env:"WEB_URL"`
	WebURL     *url.URL
	ListenAddr string `env:"LISTEN_ADDR"`

	DatabaseDSN    string `env:"DATABASE_URL"`
	DatabaseDriver string `env:"DATABASE_DRIVER"`

	StorageDriver     string `env:"STORAGE_DRIVER"`
	StorageBucket     string `env:"STORAGE_BUCKET"`
	StoragePathPrefix string `env:"STORAGE_PATH_PREFIX"`
	StorageUseSSL     bool   `env:"STORAGE_USE_SSL"`

	AWSEndpoint  string `env:"AWS_S3_ENDPOINT_URL"`
	AWSAccessKey string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey string `env:"AWS_SECRET_ACCESS_KEY"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`

	LocalStoragePath string `env:"LOCAL_STORAGE_PATH"`

	AutoSaveDelayMs int `env:"AUTOSAVE_DELAY_MS"`
	MaxImageWidth   int `env:"MAX_IMAGE_WIDTH"`
	MaxUploadMB     int `env:"MAX_UPLOAD_MB"`

	LegacyHTMLImport bool `env:"LEGACY_HTML_IMPORT"`
	MinifyHTML       bool `env:"MINIFY_HTML"`
	HighlightCode    bool `env:"HIGHLIGHT_CODE"`
	MetricsEnable    bool `env:"METRICS_ENABLE"`
}

// AutoSaveDelay возвращает задержку автосохранения редактора.
func (c *Config) AutoSaveDelay() time.Duration {
	return time.Duration(c.AutoSaveDelayMs) * time.Millisecond
}

// MaxUploadBytes возвращает лимит размера выгружаемого файла.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// ReadConfig загружает конфигурацию. Если WEB_URL не задан или некорректен, приложение завершает работу.
func ReadConfig() *Config {
	config, err := Load()
	if err != nil {
		slog.Error("Read config", "err", err)
		os.Exit(1)
	}
	return config
}

// Load загружает конфигурацию и применяет значения по умолчанию.
func Load() (*Config, error) {
	config := &Config{}

	envConfig("env", config)

	if config.WebURLRaw == "" {
		return nil, errors.New("WEB_URL is required")
	}
	var err error
	config.WebURL, err = url.Parse(config.WebURLRaw)
	if err != nil {
		return nil, fmt.Errorf("WEB_URL incorrect: %w", err)
	}

	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}

	switch config.DatabaseDriver {
	case DatabasePostgres, DatabaseSQLite:
	case "":
		config.DatabaseDriver = DatabasePostgres
	default:
		return nil, fmt.Errorf("unknown DATABASE_DRIVER %q", config.DatabaseDriver)
	}

	switch config.StorageDriver {
	case StorageMinio, StorageSupabase, StorageLocal:
	case "":
		config.StorageDriver = StorageLocal
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", config.StorageDriver)
	}

	if config.StorageBucket == "" {
		config.StorageBucket = "wiki"
	}
	if config.LocalStoragePath == "" {
		config.LocalStoragePath = "uploads"
	}

	if config.AutoSaveDelayMs <= 0 {
		config.AutoSaveDelayMs = 1500
	}
	if config.MaxImageWidth <= 0 {
		config.MaxImageWidth = 1600
	}
	if config.MaxUploadMB <= 0 || config.MaxUploadMB > 100 {
		config.MaxUploadMB = 10
	}

	return config, nil
}

// Присваивает полям в переданной структуре значения переменных. Название переменной для каждого поля лежит в теге этого поля.
func envConfig(key string, s interface{}) {
	v := reflect.ValueOf(s).Elem()
	typeParam := v.Type()
	for i := 0; i < v.NumField(); i++ {
		fName := typeParam.Field(i).Name
		fEnvTag := typeParam.Field(i).Tag.Get(key)

		if fEnvTag == "" || !Exist(fEnvTag) {
			continue
		}

		value := GetEnv(fEnvTag)
		if value == "" {
			continue
		}

		slog.Info("Set config value",
			slog.String("key", typeParam.Name()+"."+fName),
			slog.String("value", maskValue(fName, value)),
			slog.String("source", "ENVIRONMENT"),
		)

		switch v.Field(i).Interface().(type) {
		case string:
			v.Field(i).SetString(value)
		case int:
			v.Field(i).SetInt(int64(GetIntEnv(fEnvTag)))
		case bool:
			v.Field(i).SetBool(GetBoolEnv(fEnvTag))
		}
	}
}

// maskValue скрывает секреты, оставляя первый и последний символ.
func maskValue(field, value string) string {
	name := strings.ToLower(field)
	secret := false
	for _, s := range []string{"pass", "secret", "token", "key"} {
		if strings.Contains(name, s) {
			secret = true
			break
		}
	}
	if !secret {
		return value
	}

	runes := []rune(value)
	if len(runes) < 3 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
}
