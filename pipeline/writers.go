package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-scrape-bible/models"
)

// ChapterFileWriter writes one JSON file per chapter under
// {root}/{book}/{chapter}.json. Files are written via a temp file and
// rename, so an interrupted run never leaves a partial chapter behind.
type ChapterFileWriter struct {
	root    string
	mu      sync.Mutex
	written int
}

// NewChapterFileWriter initialises the writer and creates the output root.
func NewChapterFileWriter(root string) (*ChapterFileWriter, error) {
	if root == "" {
		return nil, fmt.Errorf("output root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output root %q: %w", root, err)
	}
	return &ChapterFileWriter{root: root}, nil
}

// Write persists each chapter to its own file.
func (cw *ChapterFileWriter) Write(chapters []*models.Chapter) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, chapter := range chapters {
		if err := cw.writeChapter(chapter); err != nil {
			return err
		}
		cw.written++
	}
	return nil
}

func (cw *ChapterFileWriter) writeChapter(chapter *models.Chapter) error {
	dir := filepath.Join(cw.root, chapter.Book)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create book directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+strconv.Itoa(chapter.Chapter)+".json.tmp")
	if err != nil {
		return fmt.Errorf("create temp chapter file: %w", err)
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(chapter); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode chapter %s/%d: %w", chapter.Book, chapter.Chapter, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp chapter file: %w", err)
	}

	final := cw.chapterPath(chapter.Book, chapter.Chapter)
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename chapter file: %w", err)
	}
	return nil
}

// HasChapter reports whether the chapter file already exists.
func (cw *ChapterFileWriter) HasChapter(book string, chapter int) bool {
	info, err := os.Stat(cw.chapterPath(book, chapter))
	return err == nil && info.Size() > 0
}

func (cw *ChapterFileWriter) chapterPath(book string, chapter int) string {
	return filepath.Join(cw.root, book, strconv.Itoa(chapter)+".json")
}

// Close is a no-op; every chapter file is closed as it is written.
func (cw *ChapterFileWriter) Close() error {
	return nil
}

// Validate ensures at least one chapter was persisted.
func (cw *ChapterFileWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.written == 0 {
		return fmt.Errorf("no chapter files written under %s", cw.root)
	}
	return nil
}

// JSONLWriter streams verse records as newline-delimited JSON, one record
// per verse, for downstream bulk loads.
type JSONLWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONLWriter initialises the JSONL writer.
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONLWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends every verse of each chapter as one JSONL record.
func (jw *JSONLWriter) Write(chapters []*models.Chapter) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, chapter := range chapters {
		for _, verse := range chapter.Verses {
			if err := jw.encoder.Encode(verse); err != nil {
				return fmt.Errorf("encode verse record: %w", err)
			}
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSONL file has data.
func (jw *JSONLWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat jsonl file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("jsonl file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
