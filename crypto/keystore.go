package crypto

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// ScryptParams sets the key derivation cost of a keystore file.
type ScryptParams struct {
	N int
	P int
}

var (
	// StandardScrypt is used whenever no parameters are given.
	StandardScrypt = ScryptParams{N: keystore.StandardScryptN, P: keystore.StandardScryptP}
	// LightScrypt trades protection for speed; meant for tests and throwaway keys.
	LightScrypt = ScryptParams{N: keystore.LightScryptN, P: keystore.LightScryptP}
)

func (p ScryptParams) orStandard() ScryptParams {
	if p.N <= 0 || p.P <= 0 {
		return StandardScrypt
	}
	return p
}

// SaveToKeystore writes the provided private key to an Ethereum v3 keystore file at the given path.
// If the parent directory does not exist it will be created with 0700 permissions.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	return SaveToKeystoreWithScrypt(path, key, passphrase, StandardScrypt)
}

// SaveToKeystoreWithScrypt is SaveToKeystore with explicit scrypt parameters.
// Zero parameters fall back to StandardScrypt.
func SaveToKeystoreWithScrypt(path string, key *PrivateKey, passphrase string, params ScryptParams) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	params = params.orStandard()
	ks := keystore.NewKeyStore(tmpDir, params.N, params.P)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return err
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("crypto: failed to create keystore file")
	}

	src := filepath.Join(tmpDir, entries[0].Name())
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(src, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts an Ethereum v3 keystore file using the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}

	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}

// LoadOrCreateKeystore loads the key at path, generating and persisting a new
// one encrypted with params when the file does not exist yet.
func LoadOrCreateKeystore(path, passphrase string, params ScryptParams) (*PrivateKey, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		key, err := GeneratePrivateKey()
		if err != nil {
			return nil, false, err
		}
		if err := SaveToKeystoreWithScrypt(path, key, passphrase, params); err != nil {
			return nil, false, err
		}
		return key, true, nil
	} else if err != nil {
		return nil, false, err
	}
	key, err := LoadFromKeystore(path, passphrase)
	return key, false, err
}
