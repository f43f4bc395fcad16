package vault

import (
	"fmt"
	"os"
)

// EncryptFile encrypts srcPath into dstPath under key, per spec.md §4.8.
// dstPath is created fresh (or truncated) and left partially written if
// encryption fails; callers that need atomicity stage to a temp path and
// rename on success (see ChangePIN's per-file re-encryption).
func EncryptFile(key []byte, srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("vault: opening source: %w", err)
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("vault: stat source: %w", err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("vault: creating destination: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if err := EncryptStream(key, src, dst, uint64(info.Size())); err != nil {
		return err
	}
	return dst.Sync()
}

// DecryptFile decrypts srcPath into dstPath under key, per spec.md §4.8.
func DecryptFile(key []byte, srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("vault: opening source: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("vault: creating destination: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if err := DecryptStream(key, src, dst); err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return err
	}
	return dst.Sync()
}
