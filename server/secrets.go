// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bvk/pipwatch/pushover"
	"github.com/bvk/pipwatch/telegram"
)

// BridgeCredentials are the login and shared token secret for the MT5
// bridge service.
type BridgeCredentials struct {
	Login  string `json:"login"`
	Secret string `json:"secret"`
}

func (v *BridgeCredentials) Check() error {
	if len(v.Login) == 0 || len(v.Secret) == 0 {
		return fmt.Errorf("bridge login and secret are required: %w", os.ErrInvalid)
	}
	return nil
}

type Secrets struct {
	MT5Bridge *BridgeCredentials `json:"mt5bridge"`
	Pushover  *pushover.Keys     `json:"pushover"`
	Telegram  *telegram.Secrets  `json:"telegram"`
}

func SecretsFromFile(fpath string) (*Secrets, error) {
	data, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}
	s := new(Secrets)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("could not decode secrets file %q: %w", fpath, err)
	}
	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

func (v *Secrets) Check() error {
	if v.MT5Bridge != nil {
		if err := v.MT5Bridge.Check(); err != nil {
			return err
		}
	}
	if v.Pushover != nil {
		if err := v.Pushover.Check(); err != nil {
			return err
		}
	}
	if v.Telegram != nil {
		if err := v.Telegram.Check(); err != nil {
			return err
		}
	}
	return nil
}
