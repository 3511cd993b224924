package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/hverdal/quire/internal"
	"github.com/hverdal/quire/internal/client"
	"github.com/hverdal/quire/internal/tui"
	pkgconfig "github.com/hverdal/quire/pkg/config"
)

var version = "dev"

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfPresent(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func browse(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	serverURL := cfg.Client.ServerURL
	if s := cmd.String("server"); s != "" {
		serverURL = s
	}

	stateFile := cfg.Client.StateFile
	if stateFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locate state dir: %w", err)
		}
		stateFile = filepath.Join(dir, "quire", "client.json")
	}

	return tui.Run(ctx, client.New(serverURL), stateFile)
}

func main() {
	cmd := &cli.Command{
		Name:    "quire",
		Usage:   "Personal markdown notebook: filesystem-backed notes served over HTTP and browsed from the terminal",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the notebook server",
				Action: serve,
				Flags:  []cli.Flag{configFlag()},
			},
			{
				Name:   "browse",
				Usage:  "Open the terminal client against a running server",
				Action: browse,
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "server",
						Aliases: []string{"s"},
						Usage:   "Server URL, overrides the config file",
						Sources: cli.EnvVars("QUIRE_SERVER_URL"),
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
