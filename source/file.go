package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ctxforge/ctxforge/model"
)

// fileMaxLineBytes bounds one change-log line; documents above it must be
// split by the exporting system.
const fileMaxLineBytes = 4 * 1024 * 1024

// fileChange is one line of the change-log file.
type fileChange struct {
	Document   *model.Document `json:"document,omitempty"`
	DocumentID string          `json:"document_id,omitempty"`
	Deleted    bool            `json:"deleted,omitempty"`
}

// FileAdapter reads changes from an append-only NDJSON file: one change per
// line, either {"document": {...}} or {"document_id": "...", "deleted":
// true}. The cursor is the number of lines already consumed, so appending
// to the file and re-running the sync picks up only the new lines.
type FileAdapter struct {
	name string
	path string
}

// NewFileAdapter creates a file-backed source.
func NewFileAdapter(name string, path string) *FileAdapter {
	return &FileAdapter{name: name, path: path}
}

// Name identifies the source.
func (a *FileAdapter) Name() string {
	return a.name
}

// FetchChanges returns the lines after the cursor offset.
func (a *FileAdapter) FetchChanges(ctx context.Context, cursor string) ([]Change, string, error) {
	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: invalid cursor %q for source %s", model.ErrValidation, cursor, a.name)
		}
		offset = parsed
	}

	file, err := os.Open(a.path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: open change log %s: %v", model.ErrProviderUnavailable, a.path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), fileMaxLineBytes)

	var changes []Change
	line := 0
	for scanner.Scan() {
		line++
		if line <= offset {
			continue
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var change fileChange
		if err := json.Unmarshal([]byte(text), &change); err != nil {
			return nil, "", fmt.Errorf("%w: parse change log %s line %d: %v", model.ErrValidation, a.path, line, err)
		}

		switch {
		case change.Deleted:
			if change.DocumentID == "" {
				return nil, "", fmt.Errorf("%w: change log %s line %d: tombstone without document_id", model.ErrValidation, a.path, line)
			}
			changes = append(changes, Change{DocumentID: change.DocumentID, Deleted: true})
		case change.Document != nil:
			changes = append(changes, Change{Document: change.Document})
		default:
			return nil, "", fmt.Errorf("%w: change log %s line %d: neither document nor tombstone", model.ErrValidation, a.path, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, "", fmt.Errorf("%w: read change log %s: %v", model.ErrProviderUnavailable, a.path, err)
	}

	return changes, strconv.Itoa(line), nil
}
