package engine

import (
	"fmt"
	"io"
	"os"

	"github.com/ajiang-xyz/zekaengine/pkg/models"
)

// ContentReader supplies file content for content checks. The engine never
// hashes files; checks run over the bytes this returns.
type ContentReader interface {
	ReadContent(path string) ([]byte, error)
}

// OSContentReader reads from the real filesystem with the size cap
// applied. Oversized or unreadable files error, which scoring treats as a
// silent miss.
type OSContentReader struct {
	// Limit overrides the content cap; zero means the default.
	Limit int64
}

// ReadContent implements ContentReader.
func (r OSContentReader) ReadContent(path string) ([]byte, error) {
	limit := r.Limit
	if limit <= 0 {
		limit = models.MaxContentBytes
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", path)
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("file exceeds maximum supported size of %d bytes", limit)
	}

	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("file exceeds maximum supported size of %d bytes", limit)
	}
	return content, nil
}

// MapContentReader serves content from memory; tests use it in place of a
// real filesystem.
type MapContentReader map[string][]byte

// ReadContent implements ContentReader.
func (m MapContentReader) ReadContent(path string) ([]byte, error) {
	content, ok := m[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return content, nil
}
