package conversation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// snapshot is the on-disk shape of a session log.
type snapshot struct {
	Turns []Turn `json:"turns"`
}

// SaveToDisk writes the full log as one JSON document to directory/filename,
// creating the directory if needed and overwriting any existing file.
func (l *Log) SaveToDisk(directory, filename string, prettyPrint bool) error {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", directory, err)
	}

	doc := snapshot{Turns: l.Turns()}

	var (
		data []byte
		err  error
	)
	if prettyPrint {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal conversation log: %w", err)
	}

	// Write to a temp file and rename so a crash never leaves a truncated snapshot.
	path := filepath.Join(directory, filename)
	tmp, err := os.CreateTemp(directory, filename+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write conversation log %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close conversation log %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace conversation log %s: %w", path, err)
	}
	return nil
}

// LoadFromFile reads a snapshot written by SaveToDisk.
func LoadFromFile(path string, opts ...LogOption) (*Log, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation log %s: %w", path, err)
	}

	var doc snapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation log %s: %w", path, err)
	}

	l := NewLog(opts...)
	l.turns = doc.Turns
	return l, nil
}
