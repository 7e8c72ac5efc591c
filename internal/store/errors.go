package store

import (
	"errors"
	"io/fs"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func artifactNotFound(path string) error {
	return amerrors.New(amerrors.ErrCodeArtifactNotFound, "index artifact not found", nil).
		WithDetail("path", path).
		WithSuggestion("Run: amanrag index")
}

func corruptIndex(path string, cause error) error {
	return amerrors.New(amerrors.ErrCodeCorruptIndex, "index artifact is unreadable", cause).
		WithDetail("path", path)
}

// openError classifies a failure to open an artifact.
func openError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return artifactNotFound(path)
	}
	return corruptIndex(path, err)
}

// IsNotFound reports whether err means the index has not been built.
func IsNotFound(err error) bool {
	return amerrors.GetCode(err) == amerrors.ErrCodeArtifactNotFound
}
