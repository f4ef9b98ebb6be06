package filestore

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmehra/cairn/pkg/types"
)

// Record file framing. A record is a YAML header between two fence lines
// followed by the free-text body. Task container files hold several records
// separated by recordSeparator lines.
const (
	headerFence     = "---"
	recordSeparator = "==="
)

// headerTimeLayout is the timestamp format used in record headers.
const headerTimeLayout = time.RFC3339

// memoryHeader is the on-disk header of a memory record. Field names and
// order are the wire contract for dependent tooling; do not reorder.
type memoryHeader struct {
	ID              string         `yaml:"id"`
	Timestamp       string         `yaml:"timestamp"`
	Complexity      int            `yaml:"complexity"`
	Category        string         `yaml:"category"`
	Project         string         `yaml:"project"`
	Tags            []string       `yaml:"tags"`
	Priority        string         `yaml:"priority"`
	Status          string         `yaml:"status"`
	RelatedMemories []string       `yaml:"related_memories"`
	AccessCount     int            `yaml:"access_count"`
	LastAccessed    string         `yaml:"last_accessed,omitempty"`
	Metadata        metadataHeader `yaml:"metadata"`
}

type metadataHeader struct {
	ContentType    string `yaml:"content_type"`
	Language       string `yaml:"language,omitempty"`
	Size           int    `yaml:"size"`
	MermaidDiagram bool   `yaml:"mermaid_diagram"`
}

// taskHeader is the on-disk header of a task record inside a project
// container file.
type taskHeader struct {
	ID                string             `yaml:"id"`
	Title             string             `yaml:"title"`
	Serial            string             `yaml:"serial"`
	Status            string             `yaml:"status"`
	Priority          string             `yaml:"priority"`
	Category          string             `yaml:"category,omitempty"`
	Project           string             `yaml:"project"`
	Tags              []string           `yaml:"tags"`
	ParentTask        string             `yaml:"parent_task,omitempty"`
	Subtasks          []string           `yaml:"subtasks,omitempty"`
	Created           string             `yaml:"created"`
	Updated           string             `yaml:"updated"`
	ManualMemories    []string           `yaml:"manual_memories"`
	MemoryConnections []connectionHeader `yaml:"memory_connections"`
}

type connectionHeader struct {
	MemoryID     string  `yaml:"memory_id"`
	MemorySerial string  `yaml:"memory_serial,omitempty"`
	Type         string  `yaml:"connection_type"`
	Relevance    float64 `yaml:"relevance"`
	Created      string  `yaml:"created"`
	Notes        string  `yaml:"notes,omitempty"`
}

// encodeMemory renders a memory as a record file: fenced YAML header, then
// the body.
func encodeMemory(m *types.Memory) ([]byte, error) {
	h := memoryHeader{
		ID:              m.ID,
		Timestamp:       m.Timestamp.UTC().Format(headerTimeLayout),
		Complexity:      m.Complexity,
		Category:        m.Category,
		Project:         m.Project,
		Tags:            emptyIfNil(m.Tags),
		Priority:        m.Priority,
		Status:          m.Status,
		RelatedMemories: emptyIfNil(m.RelatedMemories),
		AccessCount:     m.AccessCount,
		Metadata: metadataHeader{
			ContentType:    m.Metadata.ContentType,
			Language:       m.Metadata.Language,
			Size:           m.Metadata.Size,
			MermaidDiagram: m.Metadata.MermaidDiagram,
		},
	}
	if m.LastAccessed != nil {
		h.LastAccessed = m.LastAccessed.UTC().Format(headerTimeLayout)
	}
	return encodeRecord(h, m.Content)
}

// decodeMemory parses a memory record file.
func decodeMemory(data []byte) (*types.Memory, error) {
	headerBytes, body, err := splitRecord(string(data))
	if err != nil {
		return nil, err
	}
	var h memoryHeader
	if err := yaml.Unmarshal([]byte(headerBytes), &h); err != nil {
		return nil, fmt.Errorf("decode memory header: %w", err)
	}
	m := &types.Memory{
		ID:              h.ID,
		Content:         body,
		Category:        h.Category,
		Project:         h.Project,
		Tags:            h.Tags,
		Priority:        h.Priority,
		Status:          h.Status,
		RelatedMemories: h.RelatedMemories,
		AccessCount:     h.AccessCount,
		Complexity:      h.Complexity,
		Metadata: types.MemoryMetadata{
			ContentType:    h.Metadata.ContentType,
			Language:       h.Metadata.Language,
			Size:           h.Metadata.Size,
			MermaidDiagram: h.Metadata.MermaidDiagram,
		},
	}
	if ts, err := time.Parse(headerTimeLayout, h.Timestamp); err == nil {
		m.Timestamp = ts
		m.CreatedAt = ts
	}
	if h.LastAccessed != "" {
		if la, err := time.Parse(headerTimeLayout, h.LastAccessed); err == nil {
			m.LastAccessed = &la
		}
	}
	return m, nil
}

// encodeTask renders one task record (header + description body).
func encodeTask(t *types.Task) ([]byte, error) {
	h := taskHeader{
		ID:             t.ID,
		Title:          t.Title,
		Serial:         t.Serial,
		Status:         t.Status,
		Priority:       t.Priority,
		Category:       t.Category,
		Project:        t.Project,
		Tags:           emptyIfNil(t.Tags),
		ParentTask:     t.ParentTask,
		Subtasks:       t.Subtasks,
		Created:        t.CreatedAt.UTC().Format(headerTimeLayout),
		Updated:        t.UpdatedAt.UTC().Format(headerTimeLayout),
		ManualMemories: emptyIfNil(t.ManualMemories),
	}
	for _, c := range t.MemoryConnections {
		h.MemoryConnections = append(h.MemoryConnections, connectionHeader{
			MemoryID:     c.MemoryID,
			MemorySerial: c.MemorySerial,
			Type:         c.Type,
			Relevance:    c.Relevance,
			Created:      c.CreatedAt.UTC().Format(headerTimeLayout),
			Notes:        c.Notes,
		})
	}
	if h.MemoryConnections == nil {
		h.MemoryConnections = []connectionHeader{}
	}
	return encodeRecord(h, t.Description)
}

// decodeTask parses one task record from a container file.
func decodeTask(record string) (*types.Task, error) {
	headerBytes, body, err := splitRecord(record)
	if err != nil {
		return nil, err
	}
	var h taskHeader
	if err := yaml.Unmarshal([]byte(headerBytes), &h); err != nil {
		return nil, fmt.Errorf("decode task header: %w", err)
	}
	t := &types.Task{
		ID:             h.ID,
		Title:          h.Title,
		Serial:         h.Serial,
		Description:    body,
		Status:         h.Status,
		Priority:       h.Priority,
		Category:       h.Category,
		Project:        h.Project,
		Tags:           h.Tags,
		ParentTask:     h.ParentTask,
		Subtasks:       h.Subtasks,
		ManualMemories: h.ManualMemories,
	}
	for _, c := range h.MemoryConnections {
		conn := types.Connection{
			MemoryID:     c.MemoryID,
			MemorySerial: c.MemorySerial,
			TaskID:       h.ID,
			Type:         c.Type,
			Relevance:    c.Relevance,
			Notes:        c.Notes,
		}
		if ts, err := time.Parse(headerTimeLayout, c.Created); err == nil {
			conn.CreatedAt = ts
		}
		t.MemoryConnections = append(t.MemoryConnections, conn)
	}
	if ts, err := time.Parse(headerTimeLayout, h.Created); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(headerTimeLayout, h.Updated); err == nil {
		t.UpdatedAt = ts
	}
	return t, nil
}

// encodeRecord frames a YAML header and a body into one record.
func encodeRecord(header interface{}, body string) ([]byte, error) {
	headerYAML, err := yaml.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encode record header: %w", err)
	}
	var b strings.Builder
	b.WriteString(headerFence + "\n")
	b.Write(headerYAML)
	b.WriteString(headerFence + "\n")
	b.WriteString(body)
	if body != "" && !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

// splitRecord separates the fenced header from the body.
func splitRecord(record string) (header, body string, err error) {
	record = strings.TrimLeft(record, "\n")
	if !strings.HasPrefix(record, headerFence+"\n") {
		return "", "", fmt.Errorf("record has no header fence")
	}
	rest := record[len(headerFence)+1:]
	end := strings.Index(rest, "\n"+headerFence+"\n")
	if end < 0 {
		// Header may close at end of content ("\n---" with nothing after).
		if strings.HasSuffix(rest, "\n"+headerFence) {
			return rest[:len(rest)-len(headerFence)-1], "", nil
		}
		return "", "", fmt.Errorf("record header fence is not closed")
	}
	header = rest[:end]
	body = strings.TrimSuffix(rest[end+len(headerFence)+2:], "\n")
	return header, body, nil
}

// escapeSeparator pads every description line that consists solely of the
// record separator. Unescaped, such a line would re-frame the container on
// reparse: the header fence above and the trailing newline below supply the
// surrounding newlines, so first and last lines are just as dangerous as
// interior ones.
func escapeSeparator(body string) string {
	if !strings.Contains(body, recordSeparator) {
		return body
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if line == recordSeparator {
			lines[i] = " " + recordSeparator
		}
	}
	return strings.Join(lines, "\n")
}

// splitContainer breaks a task container file into individual records.
func splitContainer(data string) []string {
	parts := strings.Split(data, "\n"+recordSeparator+"\n")
	var records []string
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		records = append(records, p)
	}
	return records
}

// joinContainer renders task records into one container file.
func joinContainer(records [][]byte) []byte {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString(recordSeparator + "\n")
		}
		b.Write(r)
	}
	return []byte(b.String())
}

// emptyIfNil keeps header lists present (as []) rather than null, which is
// what the downstream tooling expects.
func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
