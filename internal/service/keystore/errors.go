package keystore

import "errors"

// Sentinel errors for the key store layer.
var (
	ErrNotFound      = errors.New("key not found")
	ErrAlreadyExists = errors.New("key already exists")
	ErrPersistence   = errors.New("key storage unavailable")
)
