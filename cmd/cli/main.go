package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ucode/internal/cli/command"
	"ucode/internal/cli/config"
	"ucode/internal/cli/http"
	"ucode/internal/cli/repl"
	"ucode/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	userID := flag.Int64("user", 0, "Override acting user id")
	statePath := flag.String("state", "", "Override state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if *configPath != defaultConfigPath || !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	st, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load state failed: %v\n", err)
		os.Exit(1)
	}
	if *userID > 0 {
		st.UserID = *userID
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() int64 {
		return st.UserID
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	session := repl.New(client, command.Registry(), &st, cfg)
	if err := session.Run(ctx, cfg.HistoryPath); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
