package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	addr := key.PubKey().Address()
	require.True(t, strings.HasPrefix(addr.String(), "sub1"))

	parsed, err := ParseAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr.Raw(), parsed)
}

func TestParseAddressHex(t *testing.T) {
	parsed, err := ParseAddress("0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	require.Equal(t, byte(0xaa), parsed[19])

	_, err = ParseAddress("0x1234")
	require.Error(t, err)
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	_, err := NewAddress(SubPrefix, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "signer.json")
	require.NoError(t, SaveToKeystoreWithScrypt(path, key, "pass", LightScrypt))

	loaded, err := LoadFromKeystore(path, "pass")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func scryptN(t *testing.T, path string) int {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var file struct {
		Crypto struct {
			KDFParams struct {
				N int `json:"n"`
			} `json:"kdfparams"`
		} `json:"crypto"`
	}
	require.NoError(t, json.Unmarshal(raw, &file))
	return file.Crypto.KDFParams.N
}

func TestKeystoreDefaultsToStandardScrypt(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	dir := t.TempDir()

	standard := filepath.Join(dir, "standard.json")
	require.NoError(t, SaveToKeystore(standard, key, "pass"))
	require.Equal(t, StandardScrypt.N, scryptN(t, standard))

	unset := filepath.Join(dir, "unset.json")
	_, created, err := LoadOrCreateKeystore(unset, "pass", ScryptParams{})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, StandardScrypt.N, scryptN(t, unset))

	light := filepath.Join(dir, "light.json")
	require.NoError(t, SaveToKeystoreWithScrypt(light, key, "pass", LightScrypt))
	require.Equal(t, LightScrypt.N, scryptN(t, light))
}
