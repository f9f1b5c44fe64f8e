// Copyright (c) 2025 BVK Chaitanya

package cmdutil

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bvk/pipwatch/config"
	"github.com/bvk/pipwatch/server"
)

// DataFlags locate the data directory and the config and secrets files
// inside it.
type DataFlags struct {
	dataDir     string
	configPath  string
	secretsPath string
}

func (f *DataFlags) SetFlags(fset *flag.FlagSet) {
	fset.StringVar(&f.dataDir, "data-dir", "", "path to the data directory (default ~/.pipwatch)")
	fset.StringVar(&f.configPath, "config-file", "", "path to the yaml config file (default <data-dir>/config.yaml)")
	fset.StringVar(&f.secretsPath, "secrets-file", "", "path to credentials file (default <data-dir>/secrets.json)")
}

// DataDir returns the absolute path to the data directory. Directory is
// created if it doesn't exist.
func (f *DataFlags) DataDir() (string, error) {
	dir := f.dataDir
	if len(dir) == 0 {
		dir = filepath.Join(os.Getenv("HOME"), ".pipwatch")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create data directory %q: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("could not determine data-dir %q absolute path: %w", dir, err)
	}
	return abs, nil
}

func (f *DataFlags) ConfigPath() (string, error) {
	if len(f.configPath) != 0 {
		return f.configPath, nil
	}
	dir, err := f.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func (f *DataFlags) SecretsPath() (string, error) {
	if len(f.secretsPath) != 0 {
		return f.secretsPath, nil
	}
	dir, err := f.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "secrets.json"), nil
}

// LoadConfig loads the config file with the user env file and environment
// overrides applied.
func (f *DataFlags) LoadConfig() (*config.Config, error) {
	fpath, err := f.ConfigPath()
	if err != nil {
		return nil, err
	}
	return config.Load(fpath, config.EnvFile)
}

func (f *DataFlags) LoadSecrets() (*server.Secrets, error) {
	fpath, err := f.SecretsPath()
	if err != nil {
		return nil, err
	}
	return server.SecretsFromFile(fpath)
}
