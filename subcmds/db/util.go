// Copyright (c) 2023 BVK Chaitanya

package db

import (
	"fmt"

	"github.com/bvk/pipwatch/gobs"
)

func TypeNameValue(typename string) (any, error) {
	var v any
	switch typename {
	case "Snapshot":
		v = new(gobs.Snapshot)
	case "TelegramState":
		v = new(gobs.TelegramState)
	case "KeyValue":
		v = new(gobs.KeyValue)
	default:
		return nil, fmt.Errorf("unsupported type name %q", typename)
	}
	return v, nil
}
