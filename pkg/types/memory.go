package types

import (
	"regexp"
	"strings"
	"time"
)

// MinContentLength is the minimum accepted memory content length after
// trimming. Shorter content is rejected with a ValidationError.
const MinContentLength = 3

// DefaultProject is the project a record falls into when none is given.
const DefaultProject = "default"

// Memory represents a single free-form note record. Memories are the atomic
// units of knowledge storage: content plus structured header metadata and
// two derived fields (Complexity, ContentType) that are recomputed on every
// write and never mutated independently.
type Memory struct {
	// Core identification fields
	ID        string    `json:"id" yaml:"id"`               // Unique, time-sortable identifier
	Content   string    `json:"content" yaml:"-"`           // Free-text body (required, non-empty)
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"` // When the remembered event occurred
	CreatedAt time.Time `json:"created_at" yaml:"-"`        // When the record was created

	// Classification and organization
	Category string   `json:"category,omitempty" yaml:"category"` // Known vocabulary (see ValidCategories)
	Project  string   `json:"project" yaml:"project"`             // Grouping key, defaults to "default"
	Tags     []string `json:"tags,omitempty" yaml:"tags"`         // Ordered set of user tags
	Priority string   `json:"priority,omitempty" yaml:"priority"` // low|medium|high
	Status   string   `json:"status,omitempty" yaml:"status"`     // active|archived|reference

	// Cross-references (never ownership)
	RelatedMemories []string `json:"related_memories,omitempty" yaml:"related_memories"`

	// Quality signals
	AccessCount  int        `json:"access_count" yaml:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty" yaml:"last_accessed"`

	// Derived fields: pure functions of the current record, recomputed by
	// the Record Store on every save.
	Complexity int            `json:"complexity" yaml:"complexity"` // 1-4
	Metadata   MemoryMetadata `json:"metadata" yaml:"metadata"`

	// Connections maintained by the linker (mirror of the task-side records).
	TaskConnections []Connection `json:"task_connections,omitempty" yaml:"-"`
}

// MemoryMetadata holds the derived content metadata persisted in the record
// header. Field names are part of the wire contract.
type MemoryMetadata struct {
	ContentType    string `json:"content_type" yaml:"content_type"` // code|structured|text
	Language       string `json:"language,omitempty" yaml:"language"`
	Size           int    `json:"size" yaml:"size"`
	MermaidDiagram bool   `json:"mermaid_diagram" yaml:"mermaid_diagram"`
}

var projectSanitizeRe = regexp.MustCompile(`[^a-z0-9._-]+`)

// SanitizeProject normalizes a project identifier to the restricted charset
// used for storage keys: lowercase letters, digits, dot, underscore, hyphen.
// Whitespace becomes hyphens. An empty input maps to DefaultProject; an input
// that sanitizes to nothing returns the empty string so callers can reject it.
func SanitizeProject(project string) string {
	project = strings.TrimSpace(strings.ToLower(project))
	if project == "" {
		return DefaultProject
	}
	project = strings.ReplaceAll(project, " ", "-")
	project = projectSanitizeRe.ReplaceAllString(project, "")
	project = strings.Trim(project, "-.")
	return project
}

// Normalize applies defaults to optional fields. It does not validate;
// see Validate.
func (m *Memory) Normalize() {
	if m.Project == "" {
		m.Project = DefaultProject
	}
	if m.Priority == "" {
		m.Priority = PriorityMedium
	}
	if m.Status == "" {
		m.Status = MemoryStatusActive
	}
	if m.Category == "" {
		m.Category = CategoryGeneral
	}
}

// Validate checks the caller-supplied fields of a memory. Derived fields are
// not checked here because the store recomputes them before every write.
func (m *Memory) Validate() error {
	if len(strings.TrimSpace(m.Content)) < MinContentLength {
		return &ValidationError{
			Field:      "content",
			Message:    "memory content is required and must be at least 3 characters",
			Suggestion: "provide the note text to remember",
		}
	}
	if m.Priority != "" && !IsValidMemoryPriority(m.Priority) {
		return &ValidationError{
			Field:      "priority",
			Message:    "unknown memory priority " + quote(m.Priority),
			Suggestion: "use one of: " + strings.Join(ValidMemoryPriorities, ", "),
		}
	}
	if m.Status != "" && !IsValidMemoryStatus(m.Status) {
		return &ValidationError{
			Field:      "status",
			Message:    "unknown memory status " + quote(m.Status),
			Suggestion: "use one of: " + strings.Join(ValidMemoryStatuses, ", "),
		}
	}
	if SanitizeProject(m.Project) == "" {
		return &ValidationError{
			Field:      "project",
			Message:    "project " + quote(m.Project) + " contains no usable characters",
			Suggestion: "use letters, digits, dots, underscores or hyphens",
		}
	}
	return nil
}

// Recompute refreshes the derived fields from the current record contents.
// It is deterministic: re-saving an unchanged memory yields the same
// complexity and content type.
func (m *Memory) Recompute() {
	m.Metadata.Size = len(m.Content)
	m.Metadata.ContentType, m.Metadata.Language = DetectContentType(m.Content)
	m.Metadata.MermaidDiagram = strings.Contains(m.Content, "```mermaid")
	m.Complexity = m.computeComplexity()
}

// computeComplexity scores a memory 1-4 from the presence of organizational
// structure and content size.
func (m *Memory) computeComplexity() int {
	score := 1
	if m.Project != "" && m.Project != DefaultProject {
		score++
	}
	if (m.Category != "" && m.Category != CategoryGeneral) || len(m.Tags) > 0 {
		score++
	}
	if len(m.RelatedMemories) > 0 || len(m.Content) > 1000 {
		score++
	}
	if score > 4 {
		score = 4
	}
	return score
}

// codeMarkers are substrings whose presence strongly suggests source code.
var codeMarkers = []string{
	"func ", "def ", "class ", "import ", "package ", "#include",
	"const ", "var ", "return ", "=> {", "function ",
}

// DetectContentType classifies free text as code, structured, or plain text
// and makes a best-effort guess at the language for code content.
func DetectContentType(content string) (contentType, language string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ContentTypeText, ""
	}

	if strings.Contains(trimmed, "```") {
		return ContentTypeCode, fencedLanguage(trimmed)
	}
	for _, marker := range codeMarkers {
		if strings.Contains(trimmed, marker) {
			return ContentTypeCode, guessLanguage(trimmed)
		}
	}

	// Structured: JSON/YAML-looking bodies or dominated by list markup.
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return ContentTypeStructured, ""
	}
	lines := strings.Split(trimmed, "\n")
	listLines := 0
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "- ") || strings.HasPrefix(l, "* ") || strings.HasPrefix(l, "| ") {
			listLines++
		}
	}
	if len(lines) >= 3 && listLines*2 >= len(lines) {
		return ContentTypeStructured, ""
	}

	return ContentTypeText, ""
}

// fencedLanguage extracts the info string of the first code fence, if any.
func fencedLanguage(content string) string {
	idx := strings.Index(content, "```")
	rest := content[idx+3:]
	end := strings.IndexAny(rest, "\n ")
	if end <= 0 {
		return ""
	}
	lang := strings.TrimSpace(rest[:end])
	if lang == "mermaid" {
		return ""
	}
	return lang
}

// guessLanguage picks a language from characteristic keywords.
func guessLanguage(content string) string {
	switch {
	case strings.Contains(content, "package ") && strings.Contains(content, "func "):
		return "go"
	case strings.Contains(content, "def ") || strings.Contains(content, "import "):
		return "python"
	case strings.Contains(content, "function ") || strings.Contains(content, "=> {"):
		return "javascript"
	case strings.Contains(content, "#include"):
		return "c"
	default:
		return ""
	}
}

// quote quotes a value for inclusion in a validation message.
func quote(v string) string {
	return "'" + v + "'"
}
