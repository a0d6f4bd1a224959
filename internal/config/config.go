// Package config собирает настройки бинарников в порядке:
// значения по умолчанию -> файл (--config, JSON или YAML) -> .env ->
// переменные окружения PALERMO_* -> флаги командной строки.
// Флаги получают уже загруженные значения как умолчания, поэтому
// перекрывают только то, что указано явно.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ErrHelp — пользователь попросил справку; она уже напечатана.
var ErrHelp = pflag.ErrHelp

// Bot — настройки раннера ботов (cmd/palermobot).
type Bot struct {
	StoreURL string        `yaml:"store" env:"PALERMO_STORE_URL"`
	Root     string        `yaml:"root" env:"PALERMO_ROOT"`
	Total    int           `yaml:"total" env:"PALERMO_TOTAL"`
	GameID   string        `yaml:"gameId" env:"PALERMO_GAME_ID"`
	Interval time.Duration `yaml:"interval" env:"PALERMO_INTERVAL"`
	LogLevel string        `yaml:"logLevel" env:"PALERMO_LOG_LEVEL"`
}

func DefaultBot() Bot {
	return Bot{
		StoreURL: "ws://127.0.0.1:8090/ws",
		Root:     "games",
		Total:    4,
		Interval: 5 * time.Second,
		LogLevel: "info",
	}
}

func (c Bot) Validate() error {
	switch {
	case c.StoreURL == "":
		return errors.New("config: store url is required")
	case c.Root == "":
		return errors.New("config: root is required")
	case c.Total < 1:
		return fmt.Errorf("config: total must be positive, got %d", c.Total)
	case c.Interval <= 0:
		return fmt.Errorf("config: interval must be positive, got %v", c.Interval)
	}
	return nil
}

// Hub — настройки сервера хранилища (cmd/palermo-storehub).
type Hub struct {
	Listen           string        `yaml:"listen" env:"PALERMO_HUB_LISTEN"`
	DBPath           string        `yaml:"db" env:"PALERMO_HUB_DB"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval" env:"PALERMO_HUB_SNAPSHOT_INTERVAL"`
	LogLevel         string        `yaml:"logLevel" env:"PALERMO_LOG_LEVEL"`
}

func DefaultHub() Hub {
	return Hub{
		Listen:           ":8090",
		SnapshotInterval: 10 * time.Second,
		LogLevel:         "info",
	}
}

func (c Hub) Validate() error {
	if c.Listen == "" {
		return errors.New("config: listen address is required")
	}
	if c.DBPath != "" && c.SnapshotInterval <= 0 {
		return fmt.Errorf("config: snapshot interval must be positive, got %v", c.SnapshotInterval)
	}
	return nil
}

// LoadBot разбирает args (без имени программы).
func LoadBot(args []string, usage io.Writer) (Bot, error) {
	cfg := DefaultBot()
	err := load("palermobot", args, usage, &cfg, func(fs *pflag.FlagSet) {
		fs.IntVar(&cfg.Total, "total", cfg.Total, "desired number of players per game")
		fs.StringVar(&cfg.GameID, "game-id", cfg.GameID, "fill only this game (default: every eligible game)")
		fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "supervisor scan interval")
		fs.StringVar(&cfg.StoreURL, "store", cfg.StoreURL, "store hub websocket url")
		fs.StringVar(&cfg.Root, "root", cfg.Root, "store path holding the games")
		fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	})
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func LoadHub(args []string, usage io.Writer) (Hub, error) {
	cfg := DefaultHub()
	err := load("palermo-storehub", args, usage, &cfg, func(fs *pflag.FlagSet) {
		fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "http listen address")
		fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite snapshot file (empty: in-memory only)")
		fs.DurationVar(&cfg.SnapshotInterval, "snapshot-interval", cfg.SnapshotInterval, "how often to persist changes")
		fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	})
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func load(name string, args []string, usage io.Writer, target any, bind func(*pflag.FlagSet)) error {
	// первый проход: только --config, остальное потом
	pre := pflag.NewFlagSet(name, pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	path := pre.String("config", os.Getenv("PALERMO_CONFIG"), "")
	pre.BoolP("help", "h", false, "")
	_ = pre.Parse(args)

	if *path != "" {
		if err := readFile(*path, target); err != nil {
			return err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if usage == nil {
		usage = io.Discard
	}
	fs.SetOutput(usage)
	fs.String("config", *path, "json or yaml config file")
	fs.BoolP("help", "h", false, "show help")
	bind(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if help, _ := fs.GetBool("help"); help {
		fmt.Fprintf(usage, "Usage of %s:\n", name)
		fs.PrintDefaults()
		return ErrHelp
	}
	return nil
}

// readFile читает JSON или YAML. JSON — подмножество YAML, поэтому
// декодер один, и длительности пишутся строками ("5s") в обоих форматах.
func readFile(path string, target any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, target); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}
