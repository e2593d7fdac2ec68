// Package archive retires session logs to zstd-compressed files. Archived
// sessions stay replayable (the replay engine reads .jsonl.zst transparently)
// but are excluded from resume candidacy until restored.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Suffix names archived session logs: <sessionID>.jsonl.zst.
const Suffix = ".jsonl.zst"

// Path returns the deterministic archive path for a session id.
func Path(sessionID, archiveDir string) string {
	return filepath.Join(archiveDir, sessionID+Suffix)
}

// IsArchivePath reports whether path names a compressed session log.
func IsArchivePath(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// Compress writes srcPath into archiveDir/<sessionID>.jsonl.zst and returns
// the archive path. The source file is left in place; callers decide whether
// to remove it.
func Compress(srcPath, archiveDir string) (string, error) {
	sessionID := SessionIDFromPath(srcPath)
	if sessionID == "" {
		return "", fmt.Errorf("cannot extract session id from %s", srcPath)
	}

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open session log: %w", err)
	}
	defer src.Close()

	destPath := Path(sessionID, archiveDir)
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer dest.Close()

	encoder, err := zstd.NewWriter(dest)
	if err != nil {
		return "", fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := io.Copy(encoder, src); err != nil {
		encoder.Close()
		return "", fmt.Errorf("compress session log: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("finalize compression: %w", err)
	}
	return destPath, nil
}

// Restore decompresses an archived session log back into destDir as
// <sessionID>.jsonl and returns the restored path. The archive is left in
// place.
func Restore(archivePath, destDir string) (string, error) {
	sessionID := SessionIDFromPath(archivePath)
	if sessionID == "" {
		return "", fmt.Errorf("cannot extract session id from %s", archivePath)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}

	reader, err := OpenReader(archivePath)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	destPath := filepath.Join(destDir, sessionID+".jsonl")
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create restored log: %w", err)
	}
	if _, err := io.Copy(dest, reader); err != nil {
		dest.Close()
		os.Remove(destPath)
		return "", fmt.Errorf("decompress session log: %w", err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("close restored log: %w", err)
	}
	return destPath, nil
}

// OpenReader opens an archived session log for streaming reads.
func OpenReader(archivePath string) (io.ReadCloser, error) {
	src, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	decoder, err := zstd.NewReader(src)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &decodeCloser{decoder: decoder, file: src}, nil
}

type decodeCloser struct {
	decoder *zstd.Decoder
	file    *os.File
}

func (d *decodeCloser) Read(p []byte) (int, error) { return d.decoder.Read(p) }

func (d *decodeCloser) Close() error {
	d.decoder.Close()
	return d.file.Close()
}

// IsArchived reports whether an archive exists for the session id.
func IsArchived(sessionID, archiveDir string) bool {
	_, err := os.Stat(Path(sessionID, archiveDir))
	return err == nil
}

// SessionIDFromPath extracts the session id from a log or archive filename.
func SessionIDFromPath(path string) string {
	base := filepath.Base(path)
	if strings.HasSuffix(base, Suffix) {
		return strings.TrimSuffix(base, Suffix)
	}
	if strings.HasSuffix(base, ".jsonl") {
		return strings.TrimSuffix(base, ".jsonl")
	}
	return ""
}
