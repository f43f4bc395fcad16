package vault

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// archiveFolder walks dir depth-first and writes a deterministic ZIP (entries
// sorted by relative path, per-entry deflate) to destZip, per spec.md §4.8's
// "Folder archival" algorithm. It returns the archive's entry list for the
// vault file record's FolderEntries field.
func archiveFolder(dir, destZip string) ([]FolderEntry, error) {
	type walked struct {
		absPath string
		relPath string
		info    os.FileInfo
	}
	var all []walked
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		all = append(all, walked{absPath: path, relPath: filepath.ToSlash(rel), info: info})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vault: walking folder: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].relPath < all[j].relPath })

	zf, err := os.Create(destZip)
	if err != nil {
		return nil, fmt.Errorf("vault: creating archive: %w", err)
	}
	defer func() { _ = zf.Close() }()

	zw := zip.NewWriter(zf)
	entries := make([]FolderEntry, 0, len(all))
	for _, w := range all {
		entry := FolderEntry{
			Name:         filepath.Base(w.relPath),
			RelativePath: w.relPath,
			IsDirectory:  w.info.IsDir(),
		}
		if w.info.IsDir() {
			entry.FileType = fileTypeDirectory
			if _, err := zw.Create(w.relPath + "/"); err != nil {
				_ = zw.Close()
				return nil, fmt.Errorf("vault: writing directory entry: %w", err)
			}
			entries = append(entries, entry)
			continue
		}
		entry.SizeBytes = w.info.Size()
		entry.FileType = DetectFileType(w.relPath)
		header, err := zip.FileInfoHeader(w.info)
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("vault: building zip header: %w", err)
		}
		header.Name = w.relPath
		header.Method = zip.Deflate
		writer, err := zw.CreateHeader(header)
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("vault: creating zip entry: %w", err)
		}
		if err := copyFileInto(writer, w.absPath); err != nil {
			_ = zw.Close()
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("vault: finalizing archive: %w", err)
	}
	return entries, nil
}

func copyFileInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("vault: opening %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	buf := make([]byte, 1<<20)
	if _, err := io.CopyBuffer(w, f, buf); err != nil {
		return fmt.Errorf("vault: archiving %q: %w", path, err)
	}
	return nil
}

// extractZipMember reads memberPath out of the ZIP at zipPath and writes it
// to outPath, per spec.md §4.8's single-member extraction step.
func extractZipMember(zipPath, memberPath, outPath string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("vault: opening archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.Name != memberPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("vault: opening archive member: %w", err)
		}
		defer func() { _ = rc.Close() }()

		out, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("vault: creating output: %w", err)
		}
		defer func() { _ = out.Close() }()

		buf := make([]byte, 1<<20)
		if _, err := io.CopyBuffer(out, rc, buf); err != nil {
			return fmt.Errorf("vault: extracting member: %w", err)
		}
		return nil
	}
	return fmt.Errorf("vault: member %q not found in archive", memberPath)
}
