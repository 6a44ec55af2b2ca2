// Package parser assembles extracted field groups into verse records and
// validates the chapter invariants before output.
package parser

import (
	"fmt"

	"github.com/aluiziolira/go-scrape-bible/canon"
	"github.com/aluiziolira/go-scrape-bible/models"
)

// Assemble merges extracted fields with a reference identity into a
// complete verse record. The reference is validated against the table;
// references outside the known bounds fail with canon.OutOfRangeError.
// Returned slices are never nil so empty groups serialize as [].
func Assemble(
	table *canon.Table,
	ref canon.Ref,
	translations []models.Translation,
	words []models.OriginalWord,
	crossRefs []models.CrossReference,
) (*models.Verse, error) {
	if err := table.Validate(ref); err != nil {
		return nil, err
	}

	if translations == nil {
		translations = []models.Translation{}
	}
	if words == nil {
		words = []models.OriginalWord{}
	}
	if crossRefs == nil {
		crossRefs = []models.CrossReference{}
	}

	return &models.Verse{
		Reference:       ref.String(),
		Book:            table.DisplayName(ref.Book),
		Chapter:         ref.Chapter,
		Verse:           ref.Verse,
		Translations:    translations,
		OriginalWords:   words,
		CrossReferences: crossRefs,
	}, nil
}

// ValidateChapter checks the structural invariants of a chapter record:
// verses ordered ascending with no duplicates and chapter fields consistent
// across all verses.
func ValidateChapter(c *models.Chapter) error {
	if c == nil {
		return fmt.Errorf("chapter is nil")
	}
	if c.Book == "" {
		return fmt.Errorf("chapter missing book")
	}
	if c.Chapter < 1 {
		return fmt.Errorf("chapter number must be positive, got %d", c.Chapter)
	}

	last := 0
	for i, v := range c.Verses {
		if v == nil {
			return fmt.Errorf("%s %d: nil verse at position %d", c.Book, c.Chapter, i)
		}
		if v.Chapter != c.Chapter {
			return fmt.Errorf("%s %d: verse %d carries chapter %d", c.Book, c.Chapter, v.Verse, v.Chapter)
		}
		if v.Verse <= last {
			return fmt.Errorf("%s %d: verse order violated at position %d (%d after %d)", c.Book, c.Chapter, i, v.Verse, last)
		}
		last = v.Verse
	}
	return nil
}
