// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Convert ConvertConfig `toml:"convert"`
	Preview PreviewConfig `toml:"preview"`
	Serve   ServeConfig   `toml:"serve"`
	Queue   QueueConfig   `toml:"queue"`
	Log     LogConfig     `toml:"log"`
	Store   StoreConfig   `toml:"store"`
}

type ConvertConfig struct {
	Concurrency *int    `toml:"concurrency"`
	ParamsFile  *string `toml:"params_file"`
}

type PreviewConfig struct {
	Width  *int `toml:"width"`
	Height *int `toml:"height"`
}

type ServeConfig struct {
	Addr    *string `toml:"addr"`
	Workdir *string `toml:"workdir"`
}

type QueueConfig struct {
	RedisAddr     *string `toml:"redis_addr"`
	RedisPassword *string `toml:"redis_password"`
	RedisDB       *int    `toml:"redis_db"`
}

type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

type StoreConfig struct {
	Path *string `toml:"path"`
}

// Settings is the resolved configuration with defaults filled in.
type Settings struct {
	Concurrency   int
	ParamsFile    string
	PreviewWidth  int
	PreviewHeight int
	ServeAddr     string
	Workdir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LogLevel      string
	LogFile       string
	StorePath     string
}

// Defaults returns the settings used when neither file nor env says otherwise.
func Defaults() Settings {
	return Settings{
		Concurrency:   4,
		ParamsFile:    DefaultParamsPath(),
		PreviewWidth:  0,
		PreviewHeight: 12,
		ServeAddr:     ":8080",
		Workdir:       DefaultWorkdir(),
		RedisAddr:     "127.0.0.1:6379",
		LogLevel:      "info",
		LogFile:       DefaultLogPath(),
		StorePath:     DefaultDBPath(),
	}
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Load resolves settings from defaults, the TOML file at path and the
// environment (a .env file in the working directory is loaded first).
// Environment wins over the file.
func Load(path string) (Settings, error) {
	_ = godotenv.Load()

	fc, err := LoadConfig(path)
	if err != nil {
		return Settings{}, err
	}
	s := Defaults()
	s.apply(fc)
	s.applyEnv()
	if s.Concurrency <= 0 {
		return Settings{}, fmt.Errorf("convert.concurrency must be > 0")
	}
	return s, nil
}

func (s *Settings) apply(fc FileConfig) {
	setInt(&s.Concurrency, fc.Convert.Concurrency)
	setString(&s.ParamsFile, fc.Convert.ParamsFile)
	setInt(&s.PreviewWidth, fc.Preview.Width)
	setInt(&s.PreviewHeight, fc.Preview.Height)
	setString(&s.ServeAddr, fc.Serve.Addr)
	setString(&s.Workdir, fc.Serve.Workdir)
	setString(&s.RedisAddr, fc.Queue.RedisAddr)
	setString(&s.RedisPassword, fc.Queue.RedisPassword)
	setInt(&s.RedisDB, fc.Queue.RedisDB)
	setString(&s.LogLevel, fc.Log.Level)
	setString(&s.LogFile, fc.Log.File)
	setString(&s.StorePath, fc.Store.Path)
}

func (s *Settings) applyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("DIMCONV_REDIS_ADDR"); v != "" {
		s.RedisAddr = v
	}
	if v := os.Getenv("DIMCONV_REDIS_PASSWORD"); v != "" {
		s.RedisPassword = v
	}
	if v := os.Getenv("DIMCONV_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.RedisDB = n
		}
	}
}

func setString(target, value *string) {
	if value != nil {
		*target = *value
	}
}

func setInt(target, value *int) {
	if value != nil {
		*target = *value
	}
}
