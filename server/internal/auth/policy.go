package auth

import (
	"crypto/subtle"
	"errors"
)

var (
	errMissingKey = errors.New("missing api key")
	errInvalidKey = errors.New("invalid api key")
)

// policy is the API key check shared by the gRPC and HTTP front ends.
// A nil policy admits every caller.
type policy struct {
	header string
	key    []byte
}

func newPolicy(mode, header, key string) *policy {
	if mode != "apikey" || key == "" {
		return nil
	}
	return &policy{header: header, key: []byte(key)}
}

// check validates the first value presented for the header.
func (p *policy) check(vals []string) error {
	if p == nil {
		return nil
	}
	if len(vals) == 0 || vals[0] == "" {
		return errMissingKey
	}
	if subtle.ConstantTimeCompare([]byte(vals[0]), p.key) != 1 {
		return errInvalidKey
	}
	return nil
}
