package vault

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotSetup is returned when an operation requires a configured vault and
// none exists yet.
var ErrNotSetup = errors.New("vault is not set up")

// ErrLocked is returned for any encrypt/decrypt operation attempted while
// the session slot is empty.
var ErrLocked = errors.New("vault is locked")

// ErrAlreadySetup is returned by Setup when a vault_config.json already
// exists; use ChangePIN or Reset instead.
var ErrAlreadySetup = errors.New("vault is already set up")

// ErrPINTooShort is returned when a supplied PIN is below MinPINLength.
var ErrPINTooShort = errors.New("pin is too short")

const configFileName = "vault_config.json"

// onDiskConfig mirrors spec.md §3's vault config JSON exactly: pin_hash is a
// base64-encoded Argon2id verification hash, salt is base64-encoded random
// bytes, created_at/last_accessed are unix seconds.
type onDiskConfig struct {
	PINHash      string `json:"pin_hash"`
	Salt         string `json:"salt"`
	CreatedAt    int64  `json:"created_at"`
	LastAccessed *int64 `json:"last_accessed,omitempty"`
}

func (c *onDiskConfig) saltBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(c.Salt)
}

func loadConfigFile(path string) (*onDiskConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotSetup
		}
		return nil, fmt.Errorf("vault: reading config: %w", err)
	}
	var cfg onDiskConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("vault: parsing config: %w", err)
	}
	return &cfg, nil
}

// saveConfigFile writes path via the teacher's load-mutate-atomic-rename
// convention (internal/resolver/cache.go): marshal, write to a sibling
// ".tmp" path, then rename over the target.
func saveConfigFile(path string, cfg *onDiskConfig) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("vault: creating vault root: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("vault: writing config: %w", err)
	}
	return os.Rename(tmp, path)
}

// Setup creates a new vault at root with pin, failing if one already
// exists. A fresh random salt is generated and the base64-encoded Argon2id
// verification hash is stored; the session slot is populated with the
// derived key so the vault is immediately usable.
func (v *Vault) Setup(pin string) error {
	if len(pin) < v.minPINLength {
		return ErrPINTooShort
	}
	if _, err := os.Stat(v.configPath()); err == nil {
		return ErrAlreadySetup
	}
	salt, err := newSalt()
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	cfg := &onDiskConfig{
		PINHash:   hashPIN(pin, salt),
		Salt:      base64.StdEncoding.EncodeToString(salt),
		CreatedAt: now,
	}
	if err := saveConfigFile(v.configPath(), cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(v.filesDir(), 0o755); err != nil {
		return fmt.Errorf("vault: creating files dir: %w", err)
	}
	v.session.set(deriveKey(pin, salt))
	return nil
}

// Unlock verifies pin against the stored hash and, on success, derives the
// AEAD key into the session slot. last_accessed is updated on disk.
func (v *Vault) Unlock(pin string) error {
	cfg, err := loadConfigFile(v.configPath())
	if err != nil {
		return err
	}
	salt, err := cfg.saltBytes()
	if err != nil {
		return fmt.Errorf("vault: decoding salt: %w", err)
	}
	if !verifyPIN(pin, salt, cfg.PINHash) {
		return ErrCorrupted
	}
	v.session.set(deriveKey(pin, salt))
	now := time.Now().Unix()
	cfg.LastAccessed = &now
	return saveConfigFile(v.configPath(), cfg)
}

// Lock clears the session slot and purges the vault's scratch/temp
// subdirectory, per spec.md §6's "purged at lock" rule.
func (v *Vault) Lock() error {
	v.session.clear()
	v.records.Clear()
	entries, err := os.ReadDir(v.tempDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("vault: reading temp dir: %w", err)
	}
	for _, e := range entries {
		_ = os.RemoveAll(filepath.Join(v.tempDir(), e.Name()))
	}
	return nil
}

// IsUnlocked reports whether the session slot currently holds a key.
func (v *Vault) IsUnlocked() bool {
	_, ok := v.session.get()
	return ok
}

// IsSetup reports whether a vault_config.json exists at root.
func (v *Vault) IsSetup() bool {
	_, err := os.Stat(v.configPath())
	return err == nil
}

// ChangePIN verifies currentPIN, then re-encrypts every ciphertext file in
// the vault under a freshly-derived key for newPIN, per spec.md §4.8's
// "Re-encryption on PIN change" and the PIN-change atomicity Open Question
// decision (DESIGN.md): each file is staged to a sibling path and renamed
// over the original on success; the whole operation aborts, reporting the
// ids rotated so far, on the first file that fails.
func (v *Vault) ChangePIN(currentPIN, newPIN string) error {
	if len(newPIN) < v.minPINLength {
		return ErrPINTooShort
	}
	cfg, err := loadConfigFile(v.configPath())
	if err != nil {
		return err
	}
	oldSalt, err := cfg.saltBytes()
	if err != nil {
		return fmt.Errorf("vault: decoding salt: %w", err)
	}
	if !verifyPIN(currentPIN, oldSalt, cfg.PINHash) {
		return ErrCorrupted
	}
	oldKey := deriveKey(currentPIN, oldSalt)
	newSaltBytes, err := newSalt()
	if err != nil {
		return err
	}
	newKey := deriveKey(newPIN, newSaltBytes)

	entries, err := os.ReadDir(v.filesDir())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: listing files: %w", err)
	}
	rotated := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		original := filepath.Join(v.filesDir(), name)
		scratch := original + ".rekey.tmp"
		staged := original + ".new.tmp"

		if err := DecryptFile(oldKey, original, scratch); err != nil {
			return fmt.Errorf("vault: re-encryption aborted, rotated %v before failing on %q: %w", rotated, name, err)
		}
		encErr := EncryptFile(newKey, scratch, staged)
		_ = os.Remove(scratch)
		if encErr != nil {
			return fmt.Errorf("vault: re-encryption aborted, rotated %v before failing on %q: %w", rotated, name, encErr)
		}
		if err := os.Rename(staged, original); err != nil {
			return fmt.Errorf("vault: re-encryption aborted, rotated %v before failing on %q: %w", rotated, name, err)
		}
		rotated = append(rotated, name)
	}

	cfg.PINHash = hashPIN(newPIN, newSaltBytes)
	cfg.Salt = base64.StdEncoding.EncodeToString(newSaltBytes)
	if err := saveConfigFile(v.configPath(), cfg); err != nil {
		return fmt.Errorf("vault: rotated %d file(s) but failed saving new config: %w", len(rotated), err)
	}
	v.session.set(newKey)
	return nil
}

// Reset deletes the vault config and all ciphertext files, returning the
// vault to its never-set-up state. The caller is expected to have already
// confirmed this destructive action with the user.
func (v *Vault) Reset() error {
	v.session.clear()
	v.records.Clear()
	if err := os.RemoveAll(v.filesDir()); err != nil {
		return fmt.Errorf("vault: removing files dir: %w", err)
	}
	if err := os.RemoveAll(v.tempDir()); err != nil {
		return fmt.Errorf("vault: removing temp dir: %w", err)
	}
	if err := os.Remove(v.configPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: removing config: %w", err)
	}
	return nil
}
