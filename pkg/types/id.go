package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID prefixes distinguish record kinds at a glance.
const (
	MemoryIDPrefix = "mem"
	TaskIDPrefix   = "task"
)

// idStampLayout orders lexicographically, which keeps ids time-sortable.
const idStampLayout = "20060102T150405"

// NewMemoryID returns a unique, time-sortable memory id,
// e.g. "mem-20250114T093210-1a2b3c4d".
func NewMemoryID(now time.Time) string {
	return newID(MemoryIDPrefix, now)
}

// NewTaskID returns a unique, time-sortable task id.
func NewTaskID(now time.Time) string {
	return newID(TaskIDPrefix, now)
}

func newID(prefix string, now time.Time) string {
	suffix := strings.SplitN(uuid.New().String(), "-", 2)[0]
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format(idStampLayout), suffix)
}

// IsMemoryID reports whether id carries the memory prefix.
func IsMemoryID(id string) bool { return strings.HasPrefix(id, MemoryIDPrefix+"-") }

// IsTaskID reports whether id carries the task prefix.
func IsTaskID(id string) bool { return strings.HasPrefix(id, TaskIDPrefix+"-") }
