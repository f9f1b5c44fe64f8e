// Copyright (c) 2025 BVK Chaitanya

// Package setup implements the commands that edit the secrets file.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/bvk/pipwatch/server"
	"github.com/bvk/pipwatch/subcmds/cmdutil"
	"golang.org/x/term"
)

// updateSecrets loads the secrets file, updates it with the input function
// and writes it back. Missing secrets file is treated as empty.
func updateSecrets(flags *cmdutil.DataFlags, update func(s *server.Secrets) error) error {
	fpath, err := flags.SecretsPath()
	if err != nil {
		return err
	}
	secrets, err := server.SecretsFromFile(fpath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		secrets = new(server.Secrets)
	}
	if err := update(secrets); err != nil {
		return err
	}
	if err := secrets.Check(); err != nil {
		return err
	}
	js, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(fpath, js, os.FileMode(0600)); err != nil {
		return fmt.Errorf("could not write secrets file %q: %w", fpath, err)
	}
	return nil
}

// readSecret reads a value from the terminal without echo.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("standard input is not a terminal to read %s: %w", prompt, os.ErrInvalid)
	}
	fmt.Printf("%s: ", prompt)
	data, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("could not read %s: %w", prompt, err)
	}
	return string(data), nil
}

// waitForKey waits for a single key press on the terminal.
func waitForKey() error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, oldState)

	b := make([]byte, 1)
	_, err = os.Stdin.Read(b)
	return err
}
