package server

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator mints connection identifiers. Generated ids must be unique
// among live connections.
type IDGenerator func() string

// UUIDGenerator returns random 128-bit identifiers.
func UUIDGenerator() IDGenerator {
	return uuid.NewString
}

// CounterGenerator returns prefix1, prefix2, ... from a counter owned by the
// returned generator.
func CounterGenerator(prefix string) IDGenerator {
	var n atomic.Uint64
	return func() string {
		return prefix + strconv.FormatUint(n.Add(1), 10)
	}
}

func newIDGenerator(scheme string) IDGenerator {
	if scheme == IDSchemeCounter {
		return CounterGenerator("c")
	}
	return UUIDGenerator()
}
