package vault

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"duskrelay/internal/logging"
)

const (
	filesDirName = "files"
	tempDirName  = "tmp"
	encryptedExt = ".enc"
	legacyExt    = ".vault"
	legacyIndex  = "index.json"
)

// FileType is the closed set of vault file kinds, per spec.md §3.
type FileType string

const (
	FileTypeVideo  FileType = "video"
	FileTypeAudio  FileType = "audio"
	FileTypeImage  FileType = "image"
	FileTypeFile   FileType = "file"
	FileTypeFolder FileType = "folder"

	// fileTypeDirectory is used only inside FolderEntry.FileType for a
	// directory member of an archived folder; it is not one of the vault
	// record's own FileType values (spec.md §3's closed set applies to the
	// top-level record, not per-entry folder members).
	fileTypeDirectory FileType = "directory"
)

// DetectFileType classifies a file by extension, for callers that don't
// already know the kind they're vaulting.
func DetectFileType(name string) FileType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".mkv", ".mov", ".avi", ".webm":
		return FileTypeVideo
	case ".mp3", ".wav", ".flac", ".m4a", ".ogg":
		return FileTypeAudio
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return FileTypeImage
	default:
		return FileTypeFile
	}
}

// FolderEntry describes one member of an archived folder, per spec.md §3's
// vault file record's folder_entries shape.
type FolderEntry struct {
	Name         string   `json:"name"`
	RelativePath string   `json:"relative_path"`
	SizeBytes    int64    `json:"size_bytes"`
	FileType     FileType `json:"file_type"`
	IsDirectory  bool     `json:"is_directory"`
}

// File is the vault file record, per spec.md §3. It is the shape an
// external collaborator persists; RecordCache keeps an in-memory copy for
// fast repeated listing (S-4.10), never as the source of truth.
type File struct {
	ID            string        `json:"id"`
	OriginalName  string        `json:"original_name"`
	EncryptedName string        `json:"encrypted_name"`
	SizeBytes     int64         `json:"size_bytes"`
	AddedAt       int64         `json:"added_at"`
	FileType      FileType      `json:"file_type"`
	Thumbnail     *string       `json:"thumbnail,omitempty"`
	IsFolder      bool          `json:"is_folder"`
	FolderEntries []FolderEntry `json:"folder_entries,omitempty"`
}

// Status is vault.status's result shape, per spec.md §6.
type Status struct {
	Setup    bool
	Unlocked bool
	Count    int
	Bytes    int64
}

// Vault ties together key management, the chunked cryptor, folder
// archival, and the record cache behind a single root directory, per
// spec.md §4.8/§4.9 and S-4.10.
type Vault struct {
	root         string
	minPINLength int
	session      *sessionSlot
	records      *RecordCache
	log          *logging.Logger
}

// New returns a Vault rooted at root. minPINLength defaults to 4 (spec.md
// §3) when given as 0 or negative.
func New(root string, minPINLength int, log *logging.Logger) *Vault {
	if minPINLength <= 0 {
		minPINLength = 4
	}
	return &Vault{
		root:         root,
		minPINLength: minPINLength,
		session:      newSessionSlot(),
		records:      NewRecordCache(),
		log:          log,
	}
}

func (v *Vault) configPath() string { return filepath.Join(v.root, configFileName) }
func (v *Vault) filesDir() string   { return filepath.Join(v.root, filesDirName) }
func (v *Vault) tempDir() string    { return filepath.Join(v.root, tempDirName) }

// Status walks the ciphertext directory to count files and sum bytes, per
// spec.md §4.8's "no local index" rule: any legacy index.json is deleted as
// a side effect of checking status.
func (v *Vault) Status() (Status, error) {
	st := Status{Setup: v.IsSetup(), Unlocked: v.IsUnlocked()}
	if legacy := filepath.Join(v.root, legacyIndex); fileExists(legacy) {
		if err := os.Remove(legacy); err != nil && v.log != nil {
			v.log.WarnfThrottled("vault-legacy-index", time.Minute, "vault: failed removing legacy index.json: %v", err)
		}
	}
	entries, err := os.ReadDir(v.filesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("vault: listing files: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		st.Count++
		st.Bytes += info.Size()
	}
	return st, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AddFile encrypts srcPath into the vault as a new file record. When
// deleteOriginal is true, srcPath is removed after a successful encrypt.
func (v *Vault) AddFile(srcPath, name string, fileType FileType, thumbnail *string, deleteOriginal bool) (File, error) {
	key, ok := v.session.get()
	if !ok {
		return File{}, ErrLocked
	}
	if err := os.MkdirAll(v.filesDir(), 0o755); err != nil {
		return File{}, fmt.Errorf("vault: creating files dir: %w", err)
	}
	info, err := os.Stat(srcPath)
	if err != nil {
		return File{}, fmt.Errorf("vault: stat source: %w", err)
	}
	id := uuid.NewString()
	encName := id + encryptedExt
	dst := filepath.Join(v.filesDir(), encName)
	if err := EncryptFile(key, srcPath, dst); err != nil {
		return File{}, err
	}
	if deleteOriginal {
		if err := os.Remove(srcPath); err != nil && v.log != nil {
			v.log.WarnfThrottled("vault-delete-original", time.Minute, "vault: failed removing original %q: %v", srcPath, err)
		}
	}
	rec := File{
		ID:            id,
		OriginalName:  name,
		EncryptedName: encName,
		SizeBytes:     info.Size(),
		AddedAt:       time.Now().Unix(),
		FileType:      fileType,
		Thumbnail:     thumbnail,
	}
	v.records.Put(rec)
	return rec, nil
}

// AddFolder archives dir into a deterministic ZIP at a scratch path, then
// vaults the archive like a regular file, exposing the archive's entry list
// as FolderEntries, per spec.md §4.8's "Folder archival" algorithm.
func (v *Vault) AddFolder(dir, name string, deleteOriginal bool) (File, error) {
	key, ok := v.session.get()
	if !ok {
		return File{}, ErrLocked
	}
	if err := os.MkdirAll(v.tempDir(), 0o755); err != nil {
		return File{}, fmt.Errorf("vault: creating temp dir: %w", err)
	}
	scratchZip := filepath.Join(v.tempDir(), uuid.NewString()+".zip")
	defer func() { _ = os.Remove(scratchZip) }()

	entries, err := archiveFolder(dir, scratchZip)
	if err != nil {
		return File{}, err
	}

	if err := os.MkdirAll(v.filesDir(), 0o755); err != nil {
		return File{}, fmt.Errorf("vault: creating files dir: %w", err)
	}
	info, err := os.Stat(scratchZip)
	if err != nil {
		return File{}, fmt.Errorf("vault: stat archive: %w", err)
	}
	id := uuid.NewString()
	encName := id + encryptedExt
	dst := filepath.Join(v.filesDir(), encName)
	if err := EncryptFile(key, scratchZip, dst); err != nil {
		return File{}, err
	}
	if deleteOriginal {
		if err := os.RemoveAll(dir); err != nil && v.log != nil {
			v.log.WarnfThrottled("vault-delete-original", time.Minute, "vault: failed removing original folder %q: %v", dir, err)
		}
	}
	rec := File{
		ID:            id,
		OriginalName:  name,
		EncryptedName: encName,
		SizeBytes:     info.Size(),
		AddedAt:       time.Now().Unix(),
		FileType:      FileTypeFolder,
		IsFolder:      true,
		FolderEntries: entries,
	}
	v.records.Put(rec)
	return rec, nil
}

// ExportFile decrypts the vault file named encryptedName into dest/originalName
// and returns the final path, per spec.md §6's vault.export_file.
func (v *Vault) ExportFile(encryptedName, originalName, dest string) (string, error) {
	key, ok := v.session.get()
	if !ok {
		return "", ErrLocked
	}
	src, err := v.resolveCiphertextPath(encryptedName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("vault: creating destination: %w", err)
	}
	finalPath := filepath.Join(dest, originalName)
	if err := DecryptFile(key, src, finalPath); err != nil {
		return "", err
	}
	return finalPath, nil
}

// ExtractFolderFile decrypts the whole folder archive named encryptedName to
// a scratch ZIP, extracts innerPath from it to a fresh temp path under the
// vault's temp subdirectory, deletes the scratch ZIP, and returns the temp
// path, per spec.md §4.8.
func (v *Vault) ExtractFolderFile(id, encryptedName, innerPath string) (string, error) {
	key, ok := v.session.get()
	if !ok {
		return "", ErrLocked
	}
	src, err := v.resolveCiphertextPath(encryptedName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(v.tempDir(), 0o755); err != nil {
		return "", fmt.Errorf("vault: creating temp dir: %w", err)
	}
	scratchZip := filepath.Join(v.tempDir(), id+"-"+uuid.NewString()+".zip")
	if err := DecryptFile(key, src, scratchZip); err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(scratchZip) }()

	outPath := filepath.Join(v.tempDir(), uuid.NewString()+"-"+filepath.Base(innerPath))
	if err := extractZipMember(scratchZip, innerPath, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// resolveCiphertextPath locates a vault ciphertext file by its stored
// encrypted_name, accepting the legacy ".vault" extension on read per
// spec.md §6.
func (v *Vault) resolveCiphertextPath(encryptedName string) (string, error) {
	candidate := filepath.Join(v.filesDir(), encryptedName)
	if fileExists(candidate) {
		return candidate, nil
	}
	legacy := filepath.Join(v.filesDir(), strings.TrimSuffix(encryptedName, encryptedExt)+legacyExt)
	if fileExists(legacy) {
		return legacy, nil
	}
	return "", fmt.Errorf("vault: ciphertext %q not found", encryptedName)
}

// RenameCiphertext migrates a legacy ".vault" ciphertext file to the
// current ".enc" extension in place, per spec.md §6's "rename tool
// provided" note.
func (v *Vault) RenameCiphertext(oldName, newName string) error {
	oldPath := filepath.Join(v.filesDir(), oldName)
	newPath := filepath.Join(v.filesDir(), newName)
	return os.Rename(oldPath, newPath)
}

// SizeOf returns the on-disk ciphertext size for a vault file.
func (v *Vault) SizeOf(encryptedName string) (int64, error) {
	path, err := v.resolveCiphertextPath(encryptedName)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("vault: stat ciphertext: %w", err)
	}
	return info.Size(), nil
}

// GetFileBase64 decrypts a vault file fully into memory and returns it
// ready for base64 transport to an external sync collaborator, per spec.md
// §6's vault.get_file_base64.
func (v *Vault) GetFileBase64(encryptedName string) ([]byte, error) {
	key, ok := v.session.get()
	if !ok {
		return nil, ErrLocked
	}
	src, err := v.resolveCiphertextPath(encryptedName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("vault: opening ciphertext: %w", err)
	}
	defer func() { _ = f.Close() }()
	var out bytes.Buffer
	if err := DecryptStream(key, f, &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// SaveFileBase64 encrypts raw plaintext bytes supplied by an external sync
// collaborator directly into the vault, per spec.md §6's
// vault.save_file_base64.
func (v *Vault) SaveFileBase64(plaintext []byte, name string, fileType FileType) (File, error) {
	key, ok := v.session.get()
	if !ok {
		return File{}, ErrLocked
	}
	if err := os.MkdirAll(v.filesDir(), 0o755); err != nil {
		return File{}, fmt.Errorf("vault: creating files dir: %w", err)
	}
	id := uuid.NewString()
	encName := id + encryptedExt
	dst, err := os.Create(filepath.Join(v.filesDir(), encName))
	if err != nil {
		return File{}, fmt.Errorf("vault: creating ciphertext: %w", err)
	}
	defer func() { _ = dst.Close() }()
	if err := EncryptStream(key, bytes.NewReader(plaintext), dst, uint64(len(plaintext))); err != nil {
		return File{}, err
	}
	rec := File{
		ID:            id,
		OriginalName:  name,
		EncryptedName: encName,
		SizeBytes:     int64(len(plaintext)),
		AddedAt:       time.Now().Unix(),
		FileType:      fileType,
	}
	v.records.Put(rec)
	return rec, nil
}
