package save

import (
	"os"
	"path/filepath"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
)

// WriteFile stores data at path through a temporary file and rename, so a
// crash never leaves a half-written save behind.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIOFailure, "create temp save", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return apperrors.Wrap(apperrors.CodeIOFailure, "write save", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return apperrors.Wrap(apperrors.CodeIOFailure, "close save", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return apperrors.Wrap(apperrors.CodeIOFailure, "rename save", err)
	}
	return nil
}

// ReadFile loads a save from path.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOFailure, "read save", err)
	}
	return data, nil
}
