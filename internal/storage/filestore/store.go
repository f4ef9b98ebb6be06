// Package filestore implements the record store over plain text files.
//
// Memories are stored one record per file under <root>/memories/<project>/,
// tasks in one container file per project under <root>/tasks/. The two
// layouts are distinct on purpose: dependent tooling (dashboard, CLI) reads
// these files directly, so both formats are preserved field-for-field.
//
// Writes are whole-record rewrites with no record-level locking. Two
// concurrent writers to the same record race and the last write wins; this
// is an accepted, documented limitation of the single-writer design.
package filestore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmehra/cairn/pkg/types"
)

const (
	memoriesDir = "memories"
	tasksDir    = "tasks"

	recordExt = ".md"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Store anchors both record stores at a common root directory.
type Store struct {
	root string

	// mu serializes in-process writers. Cross-process writers are not
	// coordinated (last write wins).
	mu sync.Mutex

	// onWrite, when set, is called with the target path right before every
	// file write or removal. The record watcher registers its Suppress here
	// so self-writes do not loop back as external-edit events.
	onWrite func(path string)
}

// New creates a Store rooted at dir, creating the layout if needed.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, &types.ValidationError{
			Field:      "root",
			Message:    "storage root directory is required",
			Suggestion: "set CAIRN_DATA_PATH or pass an explicit path",
		}
	}
	s := &Store{root: dir}
	for _, sub := range []string{memoriesDir, tasksDir} {
		p := filepath.Join(dir, sub)
		if err := os.MkdirAll(p, dirPerm); err != nil {
			return nil, &types.IOError{Op: "mkdir", Path: p, Err: err}
		}
	}
	return s, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

// Memories returns the memory store backed by this root.
func (s *Store) Memories() *MemoryStore { return &MemoryStore{store: s} }

// Tasks returns the task store backed by this root.
func (s *Store) Tasks() *TaskStore { return &TaskStore{store: s} }

// projectKey sanitizes a project identifier for use as a storage key.
// Invalid or empty results are a ValidationError, not a silent default.
func projectKey(project string) (string, error) {
	key := types.SanitizeProject(project)
	if key == "" {
		return "", &types.ValidationError{
			Field:      "project",
			Message:    "project '" + project + "' contains no usable characters",
			Suggestion: "use letters, digits, dots, underscores or hyphens",
		}
	}
	return key, nil
}

// memoryDir returns the directory holding a project's memory files.
func (s *Store) memoryDir(projectKey string) string {
	return filepath.Join(s.root, memoriesDir, projectKey)
}

// taskFile returns the container file holding a project's task records.
func (s *Store) taskFile(projectKey string) string {
	return filepath.Join(s.root, tasksDir, projectKey+recordExt)
}

// listProjectKeys enumerates the project keys present under the given
// subdirectory. Memories yield directories, tasks yield container files.
func (s *Store) listProjectKeys(sub string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, sub))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &types.IOError{Op: "readdir", Path: filepath.Join(s.root, sub), Err: err}
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if sub == tasksDir {
			if e.IsDir() || !strings.HasSuffix(name, recordExt) {
				continue
			}
			keys = append(keys, strings.TrimSuffix(name, recordExt))
			continue
		}
		if e.IsDir() {
			keys = append(keys, name)
		}
	}
	return keys, nil
}

// SetWriteHook registers fn to observe every write and removal this store
// performs, called with the target path just before the operation.
func (s *Store) SetWriteHook(fn func(path string)) {
	s.onWrite = fn
}

// writeFile performs the whole-record rewrite. Failures are fatal for the
// single operation and surfaced unmodified; retries are the caller's call.
func (s *Store) writeFile(path string, data []byte) error {
	if s.onWrite != nil {
		s.onWrite(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return &types.IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return &types.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// removeFile deletes a record file through the same observation hook.
func (s *Store) removeFile(path string) error {
	if s.onWrite != nil {
		s.onWrite(path)
	}
	return os.Remove(path)
}
