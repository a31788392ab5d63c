package store

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// InputDigest hashes the content of every input path in argument order.
// Directories are walked in lexical order and each file's relative path is
// hashed with its content, so renames change the digest. Empty paths are
// skipped.
func InputDigest(paths ...string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return "", eris.Wrapf(err, "store: stat input %s", p)
		}
		if !info.IsDir() {
			if err := hashFile(h, filepath.Base(p), p); err != nil {
				return "", err
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(p, path)
			if err != nil {
				return err
			}
			return hashFile(h, filepath.ToSlash(rel), path)
		})
		if err != nil {
			return "", eris.Wrapf(err, "store: walk input %s", p)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "store: open input %s", path)
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.WriteString(w, name+"\x00"); err != nil {
		return eris.Wrap(err, "store: hash input")
	}
	if _, err := io.Copy(w, f); err != nil {
		return eris.Wrapf(err, "store: hash input %s", path)
	}
	_, err = w.Write([]byte{0})
	return eris.Wrap(err, "store: hash input")
}
