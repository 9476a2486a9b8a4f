package password

import (
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"
)

const (
	minScryptN     = 1 << 10
	minMemoryKB    = 8 * 1024
	minTimeCost    = 1
	minParallelism = 1
)

// KDF is a one-way, cost-configurable key derivation function.
type KDF interface {
	Key(secret, salt []byte, keyLen int) ([]byte, error)
}

// ScryptParams are the scrypt cost parameters.
type ScryptParams struct {
	N int
	R int
	P int
}

// ScryptKDF derives keys with scrypt.
type ScryptKDF struct {
	params ScryptParams
}

// NewScryptKDF validates params and returns a [ScryptKDF].
func NewScryptKDF(params ScryptParams) (*ScryptKDF, error) {
	if params.N < minScryptN || params.N&(params.N-1) != 0 {
		return nil, errors.New("scrypt N must be a power of two >= 1024")
	}
	if params.R < 1 {
		return nil, errors.New("scrypt r must be >= 1")
	}
	if params.P < 1 {
		return nil, errors.New("scrypt p must be >= 1")
	}
	return &ScryptKDF{params: params}, nil
}

// Key implements [KDF].
func (k *ScryptKDF) Key(secret, salt []byte, keyLen int) ([]byte, error) {
	return scrypt.Key(secret, salt, k.params.N, k.params.R, k.params.P, keyLen)
}

// Argon2Params are the Argon2id cost parameters. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
}

// Argon2idKDF derives keys with Argon2id.
type Argon2idKDF struct {
	params Argon2Params
}

// NewArgon2idKDF validates params and returns an [Argon2idKDF].
func NewArgon2idKDF(params Argon2Params) (*Argon2idKDF, error) {
	if params.Memory < minMemoryKB {
		return nil, errors.New("argon2 memory must be >= 8192 KB")
	}
	if params.Time < minTimeCost {
		return nil, errors.New("argon2 time must be >= 1")
	}
	if params.Parallelism < minParallelism {
		return nil, errors.New("argon2 parallelism must be >= 1")
	}
	return &Argon2idKDF{params: params}, nil
}

// Key implements [KDF].
func (k *Argon2idKDF) Key(secret, salt []byte, keyLen int) ([]byte, error) {
	if keyLen <= 0 {
		return nil, errors.New("argon2 key length must be > 0")
	}
	return argon2.IDKey(secret, salt, k.params.Time, k.params.Memory, k.params.Parallelism, uint32(keyLen)), nil
}
