// Основной пакет портала. Читает конфигурацию, подключается к базе, готовит файловое хранилище
// и запускает HTTP сервер.
package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/comunidadeds/portal/internal/portal"
	"github.com/comunidadeds/portal/internal/portal/config"
	"github.com/comunidadeds/portal/internal/portal/dao"
	"github.com/comunidadeds/portal/internal/portal/editor"
	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
	filestorage "github.com/comunidadeds/portal/internal/portal/file-storage"
)

var version string = "DEV"

// Пример запуска: go run main.go --trace
func main() {
	trace := flag.Bool("trace", false, "Verbose logs and sql trace")
	flag.Parse()

	if *trace {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	// Set prod log format
	if version != "DEV" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})))
	}

	slog.Info("Portal start.", "version", version)

	cfg := config.ReadConfig()

	if cfg.LegacyHTMLImport {
		// старые страницы, сохраненные как HTML, разбираются с сохранением структуры
		tiptap.ScanNormalizer.ImportHTML = editor.ImportHTMLString(schema.Default())
	}

	db, err := dao.Open(cfg, *trace)
	if err != nil {
		slog.Error("Fail init DB connection", "err", err)
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Fail set settings to conn pool", "err", err)
		os.Exit(1)
	}
	if cfg.DatabaseDriver == config.DatabaseSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	defer sqlDB.Close()

	storage, err := filestorage.New(cfg)
	if err != nil {
		slog.Error("Fail init file storage", "driver", cfg.StorageDriver, "err", err)
		os.Exit(1)
	}

	if err := portal.Server(db, cfg, storage, version); err != nil {
		slog.Error("Server fail", "err", err)
		os.Exit(1)
	}
}
