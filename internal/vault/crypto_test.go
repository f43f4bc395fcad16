package vault

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"small", 37},
		{"exactly one chunk", maxChunkSize},
		{"spans multiple chunks", maxChunkSize + 1024},
		{"several chunks", maxChunkSize*3 + 512},
	}
	key := testKey(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plaintext := make([]byte, tc.size)
			if _, err := rand.Read(plaintext); err != nil {
				t.Fatalf("generating plaintext: %v", err)
			}

			var encrypted bytes.Buffer
			if err := EncryptStream(key, bytes.NewReader(plaintext), &encrypted, uint64(tc.size)); err != nil {
				t.Fatalf("EncryptStream: %v", err)
			}

			var decrypted bytes.Buffer
			if err := DecryptStream(key, bytes.NewReader(encrypted.Bytes()), &decrypted); err != nil {
				t.Fatalf("DecryptStream: %v", err)
			}
			if !bytes.Equal(decrypted.Bytes(), plaintext) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", decrypted.Len(), len(plaintext))
			}
		})
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	key := testKey(t)
	wrongKey := testKey(t)
	plaintext := []byte("this had better not decrypt with the wrong key")

	var encrypted bytes.Buffer
	if err := EncryptStream(key, bytes.NewReader(plaintext), &encrypted, uint64(len(plaintext))); err != nil {
		t.Fatalf("EncryptStream: %v", err)
	}

	var decrypted bytes.Buffer
	err := DecryptStream(wrongKey, bytes.NewReader(encrypted.Bytes()), &decrypted)
	if err != ErrCorrupted {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

func TestDecryptTruncatedStreamFails(t *testing.T) {
	key := testKey(t)
	plaintext := make([]byte, maxChunkSize+1024)
	if _, err := rand.Read(plaintext); err != nil {
		t.Fatalf("generating plaintext: %v", err)
	}

	var encrypted bytes.Buffer
	if err := EncryptStream(key, bytes.NewReader(plaintext), &encrypted, uint64(len(plaintext))); err != nil {
		t.Fatalf("EncryptStream: %v", err)
	}

	truncated := encrypted.Bytes()[:encrypted.Len()-10]
	var decrypted bytes.Buffer
	if err := DecryptStream(key, bytes.NewReader(truncated), &decrypted); err != ErrCorrupted {
		t.Fatalf("expected ErrCorrupted for truncated stream, got %v", err)
	}
}

func TestDecryptLegacyV1Format(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("legacy single-blob ciphertext")

	gcm, err := newGCM(key)
	if err != nil {
		t.Fatalf("newGCM: %v", err)
	}
	nonce := make([]byte, baseNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		t.Fatalf("generating nonce: %v", err)
	}
	ct := gcm.Seal(nil, nonce, plaintext, nil)

	var legacy bytes.Buffer
	legacy.Write(nonce)
	legacy.Write(ct)

	var decrypted bytes.Buffer
	if err := DecryptStream(key, bytes.NewReader(legacy.Bytes()), &decrypted); err != nil {
		t.Fatalf("DecryptStream on legacy v1: %v", err)
	}
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Fatalf("legacy decrypt mismatch: got %q, want %q", decrypted.Bytes(), plaintext)
	}
}

func TestChunkNonceDerivation(t *testing.T) {
	base := make([]byte, baseNonceSize)
	for i := range base {
		base[i] = byte(i + 1)
	}
	n0 := chunkNonce(base, 0)
	n1 := chunkNonce(base, 1)
	if bytes.Equal(n0, n1) {
		t.Fatalf("nonces for distinct chunk indices must differ")
	}
	// High 4 bytes (the part not XORed) must stay identical to the base.
	if !bytes.Equal(n0[8:], base[8:]) || !bytes.Equal(n1[8:], base[8:]) {
		t.Fatalf("high 4 nonce bytes must pass through unchanged")
	}
}
