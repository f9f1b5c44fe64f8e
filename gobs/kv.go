// Copyright (c) 2023 BVK Chaitanya

package gobs

// KeyValue is a single database item in a backup file.
type KeyValue struct {
	Key   string
	Value []byte
}
