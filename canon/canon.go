// Package canon holds the static book/chapter/verse reference table that
// drives iteration order and bounds checking for the scraper.
package canon

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-bible/models"
)

// UnknownBookError reports a book name that is not part of the canon.
type UnknownBookError struct {
	Book string
}

func (e UnknownBookError) Error() string {
	return fmt.Sprintf("unknown book: %q", e.Book)
}

// OutOfRangeError reports a reference outside the known chapter/verse
// bounds. It indicates a bug in the caller or the table, never normal flow.
type OutOfRangeError struct {
	Ref Ref
}

func (e OutOfRangeError) Error() string {
	return fmt.Sprintf("reference out of range: %s %d:%d", e.Ref.Book, e.Ref.Chapter, e.Ref.Verse)
}

// Ref uniquely addresses one verse page. Book is the canonical slug
// (e.g. "1_peter").
type Ref struct {
	Book    string
	Chapter int
	Verse   int
}

// String renders the display form, e.g. "1 Peter 1:1".
func (r Ref) String() string {
	return fmt.Sprintf("%s %d:%d", displayName(r.Book), r.Chapter, r.Verse)
}

// URL builds the verse page URL under base, e.g.
// https://biblehub.com/1_peter/1-1.htm.
func (r Ref) URL(base string) string {
	return fmt.Sprintf("%s/%s/%d-%d.htm", strings.TrimSuffix(base, "/"), r.Book, r.Chapter, r.Verse)
}

// Table is the immutable reference table. Load it once and pass it to
// callers explicitly.
type Table struct {
	books  []string
	counts map[string][]int
	ntFrom int
}

// Load returns the reference table for the 66-book Protestant canon.
func Load() *Table {
	return &Table{
		books:  bookOrder,
		counts: verseCounts,
		ntFrom: oldTestamentBooks,
	}
}

// Books returns all book slugs in canonical Bible order.
func (t *Table) Books() []string {
	out := make([]string, len(t.books))
	copy(out, t.books)
	return out
}

// Resolve maps a user-supplied book name to its canonical slug. Matching is
// case-insensitive and accepts spaces or underscores ("1 Peter", "1_peter").
func (t *Table) Resolve(name string) (string, error) {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	if _, ok := t.counts[slug]; !ok {
		return "", UnknownBookError{Book: name}
	}
	return slug, nil
}

// ChapterCount returns the number of chapters in book.
func (t *Table) ChapterCount(book string) (int, error) {
	chapters, ok := t.counts[book]
	if !ok {
		return 0, UnknownBookError{Book: book}
	}
	return len(chapters), nil
}

// VerseCount returns the number of verses in the given chapter (1-indexed).
func (t *Table) VerseCount(book string, chapter int) (int, error) {
	chapters, ok := t.counts[book]
	if !ok {
		return 0, UnknownBookError{Book: book}
	}
	if chapter < 1 || chapter > len(chapters) {
		return 0, OutOfRangeError{Ref: Ref{Book: book, Chapter: chapter}}
	}
	return chapters[chapter-1], nil
}

// DisplayName converts a slug to its human-readable form
// ("1_peter" -> "1 Peter").
func (t *Table) DisplayName(book string) string {
	return displayName(book)
}

// Language returns the original language for a book: Hebrew for the Old
// Testament, Greek for the New. Decided by canonical position, never by
// inspecting page content.
func (t *Table) Language(book string) models.Language {
	for i, b := range t.books {
		if b == book {
			if i < t.ntFrom {
				return models.Hebrew
			}
			return models.Greek
		}
	}
	return models.Hebrew
}

// Contains reports whether ref lies within the table bounds.
func (t *Table) Contains(ref Ref) bool {
	return t.Validate(ref) == nil
}

// Validate checks ref against the table, returning UnknownBookError or
// OutOfRangeError when it does not address a real verse.
func (t *Table) Validate(ref Ref) error {
	chapters, ok := t.counts[ref.Book]
	if !ok {
		return UnknownBookError{Book: ref.Book}
	}
	if ref.Chapter < 1 || ref.Chapter > len(chapters) {
		return OutOfRangeError{Ref: ref}
	}
	if ref.Verse < 1 || ref.Verse > chapters[ref.Chapter-1] {
		return OutOfRangeError{Ref: ref}
	}
	return nil
}

func displayName(slug string) string {
	words := strings.Split(strings.ReplaceAll(slug, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
