package storage

import (
	"errors"
	"strings"
)

var (
	// ErrKVNotFound is the normalized error for a missing key
	ErrKVNotFound = errors.New("key not found")
)

// NormalizeKVError maps driver specific errors to unified kv errors
func NormalizeKVError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrKVNotFound) {
		return ErrKVNotFound
	}
	// goleveldb reports leveldb.ErrNotFound as "leveldb: not found"
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") {
		return ErrKVNotFound
	}
	return err
}

// ErrNotFound reports whether err means the key does not exist
func ErrNotFound(err error) bool {
	return NormalizeKVError(err) == ErrKVNotFound
}
