// Package storage provides durable key-value persistence for client state
// that must survive process restarts, such as the bearer token.
package storage

import "errors"

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("not found")

// Repository stores opaque values by key.
//
// Delete of a missing key is not an error so that callers clearing state
// (logout) stay idempotent.
type Repository interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}
