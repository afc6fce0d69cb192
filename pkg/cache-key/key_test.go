package cachekey

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyForKnownVector(t *testing.T) {
	// md5("http://example.com/")
	assert.Equal(t, "a6bf1757fff057f266b697df9cf176fd", KeyFor("http://example.com/"))
	// md5("")
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", KeyFor(""))
}

func TestKeyIsDeterministic(t *testing.T) {
	for _, algo := range []HashAlgo{HashAlgoMD5, HashAlgoBLAKE3} {
		keyer, err := NewCacheKeyer(algo)
		require.NoError(t, err)
		assert.Equal(t, keyer.Key("http://example.com/a"), keyer.Key("http://example.com/a"), string(algo))
	}
}

func TestKeyDistinguishesTargets(t *testing.T) {
	targets := []string{
		"http://example.com",
		"http://example.com/",
		"http://Example.com/",
		"https://example.com/",
		"http://example.com/a",
		"http://example.com/a?b=c",
	}
	for _, algo := range []HashAlgo{HashAlgoMD5, HashAlgoBLAKE3} {
		keyer, err := NewCacheKeyer(algo)
		require.NoError(t, err)
		seen := make(map[string]string)
		for _, target := range targets {
			key := keyer.Key(target)
			if other, ok := seen[key]; ok {
				t.Fatalf("%s: %q and %q share key %s", algo, target, other, key)
			}
			seen[key] = target
		}
	}
}

func TestKeyFixedLength(t *testing.T) {
	for _, algo := range []HashAlgo{HashAlgoMD5, HashAlgoBLAKE3} {
		keyer, _ := NewCacheKeyer(algo)
		for i := 0; i < 50; i++ {
			assert.Len(t, keyer.Key(fmt.Sprintf("http://host/%d", i)), Size*2)
		}
	}
}

func TestDefaultKeyerIsMD5(t *testing.T) {
	keyer, err := NewCacheKeyer("")
	require.NoError(t, err)
	assert.Equal(t, HashAlgoMD5, keyer.Algo)
	assert.Equal(t, KeyFor("http://example.com/"), keyer.Key("http://example.com/"))
}

func TestBlake3DiffersFromMD5(t *testing.T) {
	keyer, _ := NewCacheKeyer(HashAlgoBLAKE3)
	assert.NotEqual(t, KeyFor("http://example.com/"), keyer.Key("http://example.com/"))
}

func TestUnsupportedHash(t *testing.T) {
	_, err := NewCacheKeyer("sha1")
	assert.ErrorIs(t, err, ErrorHashNotSupported)
}
