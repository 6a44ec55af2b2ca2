// Package pipeline provides dual output to chapter files and JSONL.
package pipeline

import (
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-bible/models"
)

// DualWriter outputs to the per-chapter file tree and a verse JSONL stream
// simultaneously.
type DualWriter struct {
	chapterWriter *ChapterFileWriter
	jsonlWriter   *JSONLWriter
	mu            sync.Mutex
}

// NewDualWriter creates a dual writer for both output forms.
func NewDualWriter(root, jsonlFilename string) (*DualWriter, error) {
	chapterWriter, err := NewChapterFileWriter(root)
	if err != nil {
		return nil, fmt.Errorf("failed to create chapter writer: %w", err)
	}

	jsonlWriter, err := NewJSONLWriter(jsonlFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create jsonl writer: %w", err)
	}

	return &DualWriter{
		chapterWriter: chapterWriter,
		jsonlWriter:   jsonlWriter,
	}, nil
}

// Write writes chapters to both outputs.
func (dw *DualWriter) Write(chapters []*models.Chapter) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.chapterWriter.Write(chapters); err != nil {
		return fmt.Errorf("chapter write failed: %w", err)
	}

	if err := dw.jsonlWriter.Write(chapters); err != nil {
		return fmt.Errorf("jsonl write failed: %w", err)
	}

	return nil
}

// HasChapter delegates to the chapter file writer so resumed runs work.
func (dw *DualWriter) HasChapter(book string, chapter int) bool {
	return dw.chapterWriter.HasChapter(book, chapter)
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error

	if err := dw.chapterWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("chapter close failed: %w", err))
	}

	if err := dw.jsonlWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("jsonl close failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}

	return nil
}

// Validate validates both outputs.
func (dw *DualWriter) Validate() error {
	var errs []error

	if err := dw.chapterWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("chapter validation failed: %w", err))
	}

	if err := dw.jsonlWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("jsonl validation failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}
