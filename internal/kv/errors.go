package kv

import "errors"

// Error kinds surfaced by the adapter, per the ordered-KV-store contract.
// These are sentinel values; callers discriminate with errors.Is.
var (
	ErrNotFound  = errors.New("kv: not found")
	ErrKeyExists = errors.New("kv: key exists")
	ErrMapFull   = errors.New("kv: map full")
	ErrIO        = errors.New("kv: i/o error")
)
