package secretstore

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestParseKey(t *testing.T) {
	b, err := ParseKey(testKeyHex)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	b, err = ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = ParseKey("abcd")
	assert.Error(t, err, "长度不足 32 字节应报错")

	_, err = ParseKey(strings.Repeat("!", 10))
	assert.Error(t, err)
}

func TestStore_RoundTripAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.badger")
	key, err := ParseKey(testKeyHex)
	require.NoError(t, err)

	s, err := Open(OpenOptions{Path: path, EncryptionKey: key})
	require.NoError(t, err)

	_, found, err := s.GetString(KeyPricingToken)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetString(KeyPricingToken, "csqaq-token"))
	require.NoError(t, s.SetString(KeyTradingToken, ""))

	v, found, err := s.GetString(KeyTradingToken)
	require.NoError(t, err)
	assert.True(t, found, "空值也应视为存在")
	assert.Empty(t, v)

	keys, err := s.Keys("env/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{KeyPricingToken, KeyTradingToken}, keys)
	require.NoError(t, s.Close())

	tok, err := LookupToken(path, testKeyHex, KeyPricingToken)
	require.NoError(t, err)
	assert.Equal(t, "csqaq-token", tok)
}
