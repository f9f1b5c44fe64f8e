// Copyright (c) 2025 BVK Chaitanya

package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

type options struct {
	dirs []string

	currentDir bool
	parentDirs bool

	skipHomeDir bool

	namePrefix string

	overwrite bool
}

type Option func(*options) error

// SearchDirs adds directories that are searched, in the given order, before
// the current and home directories.
func SearchDirs(dirs ...string) Option {
	return func(opts *options) error {
		for _, dir := range dirs {
			if !filepath.IsAbs(dir) {
				return fmt.Errorf("search directory %q is not absolute: %w", dir, os.ErrInvalid)
			}
			opts.dirs = append(opts.dirs, filepath.Clean(dir))
		}
		return nil
	}
}

// SearchCurrentDir includes the current directory in the search. When
// parents is true, ancestor directories up to the root are searched too.
func SearchCurrentDir(parents bool) Option {
	return func(opts *options) error {
		opts.currentDir = true
		opts.parentDirs = parents
		return nil
	}
}

// SkipHomeDir excludes the user's home directory from the search.
func SkipHomeDir() Option {
	return func(opts *options) error {
		opts.skipHomeDir = true
		return nil
	}
}

var prefixRe = regexp.MustCompile("^[a-zA-Z][0-9a-zA-Z_]*$")

// VariableNamePrefix prepends the prefix to every variable name in the file.
func VariableNamePrefix(prefix string) Option {
	return func(opts *options) error {
		if !prefixRe.MatchString(prefix) {
			return fmt.Errorf("variable name prefix has invalid characters: %w", os.ErrInvalid)
		}
		opts.namePrefix = prefix
		return nil
	}
}

// OverwriteIfExists controls whether variables that already have a non-empty
// value are replaced.
func OverwriteIfExists(overwrite bool) Option {
	return func(opts *options) error {
		opts.overwrite = overwrite
		return nil
	}
}
