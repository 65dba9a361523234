package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ucode/internal/common/db"
	"ucode/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultConfigPath = "configs/submit-service.yaml"

type migrateConfig struct {
	Logger   logger.Config  `yaml:"logger"`
	Database db.MySQLConfig `yaml:"database"`
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envPath := flag.String("env", ".env", "Optional env file expanded into the config")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [flags] up|down|status|version\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	if err := loadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	var cfg migrateConfig
	if err := loadYAML(*configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()
	mysqlDB, err := db.NewMySQLWithConfig(cfg.Database)
	if err != nil {
		logger.Error(ctx, "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	if err := db.Migrate(ctx, mysqlDB.SQLDB(), command); err != nil {
		logger.Error(ctx, "migration failed", zap.String("command", command), zap.Error(err))
		return
	}
	logger.Info(ctx, "migration finished", zap.String("command", command))
}
