// Copyright (c) 2025 BVK Chaitanya

// Package envfile loads KEY=VALUE assignments from a dotenv style file into
// the process environment. Config loader uses it to pick up PIPWATCH_*
// overrides before envconfig processing.
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Parse reads the variable assignments from the reader. Empty lines and lines
// starting with # are skipped. An optional "export " prefix is allowed and
// double-quoted values are unquoted.
func Parse(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for i := 1; scanner.Scan(); i++ {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid variable assignment on line %d: %w", i, os.ErrInvalid)
		}
		key = strings.TrimSpace(key)
		if !prefixRe.MatchString(key) {
			return nil, fmt.Errorf("invalid environment variable name %q on line %d: %w", key, i, os.ErrInvalid)
		}
		value = strings.TrimSpace(value)
		if len(value) > 1 && value[0] == '"' {
			v, err := strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("invalid quoted value for %q on line %d: %w", key, i, os.ErrInvalid)
			}
			value = v
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}

// searchPaths returns the candidate file paths in the order of preference.
func searchPaths(filename string, fopts *options) ([]string, error) {
	var fpaths []string
	for _, dir := range fopts.dirs {
		fpaths = append(fpaths, filepath.Join(dir, filename))
	}
	if fopts.currentDir {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		fpaths = append(fpaths, filepath.Join(cwd, filename))
		if fopts.parentDirs {
			last, dir := cwd, filepath.Dir(cwd)
			for dir != last {
				fpaths = append(fpaths, filepath.Join(dir, filename))
				last, dir = dir, filepath.Dir(dir)
			}
		}
	}
	if !fopts.skipHomeDir {
		u, err := user.Current()
		if err != nil {
			return nil, err
		}
		if len(u.HomeDir) == 0 {
			return nil, fmt.Errorf("could not determine current user's home directory")
		}
		fpaths = append(fpaths, filepath.Join(u.HomeDir, filename))
	}
	return slices.Compact(fpaths), nil
}

// UpdateEnv updates current process's environment with the values read from
// the first env file found. Search directories and the current directory are
// tried before the user's home directory. Missing env file is not an error.
//
// Variables that already have a non-empty value are left untouched unless
// OverwriteIfExists option is given.
func UpdateEnv(filename string, opts ...Option) error {
	if strings.ContainsRune(filename, os.PathSeparator) {
		return fmt.Errorf("file name contains path separator: %w", os.ErrInvalid)
	}
	var fopts options
	for _, v := range opts {
		if err := v(&fopts); err != nil {
			return err
		}
	}
	fpaths, err := searchPaths(filename, &fopts)
	if err != nil {
		return err
	}
	for _, fpath := range fpaths {
		data, err := os.ReadFile(fpath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		vars, err := Parse(strings.NewReader(string(data)))
		if err != nil {
			return fmt.Errorf("could not parse env file %q: %w", fpath, err)
		}
		for _, key := range slices.Sorted(maps.Keys(vars)) {
			name := fopts.namePrefix + key
			if len(os.Getenv(name)) != 0 && !fopts.overwrite {
				continue
			}
			if err := os.Setenv(name, vars[key]); err != nil {
				return fmt.Errorf("could not set environment variable %q: %w", name, err)
			}
		}
		return nil
	}
	return nil
}
