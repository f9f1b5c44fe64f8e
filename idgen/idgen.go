// Copyright (c) 2023 BVK Chaitanya

// Package idgen derives deterministic client order ids.
//
// The same seed and offset always produce the same uuid, so an order retried
// after a process restart carries the same client order id as the original
// attempt and can be deduplicated by the gateway.
package idgen

import (
	"crypto/md5"
	"encoding/binary"

	"github.com/google/uuid"
)

type Generator struct {
	base uuid.UUID
	next uint64
}

func New(seed string, offset uint64) *Generator {
	return &Generator{
		base: uuid.UUID(md5.Sum([]byte(seed))),
		next: offset,
	}
}

// Offset returns the offset of the id that NextID will return.
func (v *Generator) Offset() uint64 {
	return v.next
}

func (v *Generator) NextID() uuid.UUID {
	id := v.At(v.next)
	v.next++
	return id
}

// At returns the id at an offset without changing the generator position.
func (v *Generator) At(offset uint64) uuid.UUID {
	var buf [16 + 8]byte
	copy(buf[:16], v.base[:])
	binary.BigEndian.PutUint64(buf[16:], offset)
	id := uuid.UUID(md5.Sum(buf[:]))
	// Mark the id as a name based (version 3) RFC 4122 uuid.
	id[6] = (id[6] & 0x0f) | 0x30
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}
