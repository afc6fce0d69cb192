package cachekey

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

type HashAlgo string

const (
	HashAlgoMD5    HashAlgo = "md5"
	HashAlgoBLAKE3 HashAlgo = "blake3"
)

// Size of every key digest in bytes (128 bits).
const Size = 16

var ErrorHashNotSupported = fmt.Errorf("Hash algorithm not supported")

type CacheKeyer struct {
	// Digest used for deriving keys.
	Algo HashAlgo
}

// NewCacheKeyer returns a keyer for the given digest.
// An empty algo selects md5, which is the format of existing cache files.
func NewCacheKeyer(algo HashAlgo) (CacheKeyer, error) {
	switch algo {
	case "":
		return CacheKeyer{Algo: HashAlgoMD5}, nil
	case HashAlgoMD5, HashAlgoBLAKE3:
		return CacheKeyer{Algo: algo}, nil
	default:
		return CacheKeyer{}, fmt.Errorf("%w: %s", ErrorHashNotSupported, algo)
	}
}

// Key returns the lowercase hex digest of the exact target string.
// The target is hashed byte for byte, no normalization takes place,
// so "http://a/" and "http://a" are different keys.
func (c CacheKeyer) Key(target string) string {
	if c.Algo == HashAlgoBLAKE3 {
		return blake3Key(target)
	}
	return KeyFor(target)
}

// KeyFor returns the md5 key for a target.
func KeyFor(target string) string {
	sum := md5.Sum([]byte(target))
	return hex.EncodeToString(sum[:])
}

func blake3Key(target string) string {
	h := blake3.New(Size, nil)
	h.Write([]byte(target))
	return hex.EncodeToString(h.Sum(nil))
}
