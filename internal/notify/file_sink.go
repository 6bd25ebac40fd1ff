package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileSink appends one JSON line per event to a file.
type FileSink struct {
	mu       sync.Mutex
	filePath string
}

// NewFileSink ensures the directory of filePath exists.
func NewFileSink(filePath string) (*FileSink, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("notification log file path cannot be empty")
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for notification log file '%s': %w", dir, err)
	}
	return &FileSink{filePath: filePath}, nil
}

func (s *FileSink) Publish(_ context.Context, ev Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open notification log file: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("failed to write notification to log file: %w", err)
	}
	return nil
}
