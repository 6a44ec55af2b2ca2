// Package models defines data structures for the scraper.
package models

import "time"

// Language identifies the original-language script of an interlinear word.
type Language string

const (
	Hebrew Language = "hebrew"
	Greek  Language = "greek"
)

// Translation is one rendering of a verse in a specific Bible version.
type Translation struct {
	Version string `json:"version"`
	Text    string `json:"text"`
}

// OriginalWord is a single interlinear entry: an original-language token
// aligned to its English phrase and Strong's concordance data.
type OriginalWord struct {
	EnglishWord     string   `json:"english_word"`
	Word            string   `json:"word"`
	Transliteration string   `json:"transliteration"`
	StrongsNumber   string   `json:"strongs_number"`
	PartOfSpeech    string   `json:"part_of_speech"`
	Definition      string   `json:"definition"`
	Language        Language `json:"language"`
}

// CrossReference cites a thematically related verse elsewhere in the text.
type CrossReference struct {
	Reference string `json:"reference"`
	Text      string `json:"text"`
}

// Verse is the complete record scraped for one verse. Slices preserve site
// presentation order and are never nil so empty groups serialize as [].
type Verse struct {
	Reference       string           `json:"reference"`
	Book            string           `json:"book"`
	Chapter         int              `json:"chapter"`
	Verse           int              `json:"verse"`
	Translations    []Translation    `json:"translations"`
	OriginalWords   []OriginalWord   `json:"original_words"`
	CrossReferences []CrossReference `json:"cross_references"`
}

// Chapter is the unit of output persistence: all verses of one book/chapter
// pair, ordered ascending by verse number.
type Chapter struct {
	Book    string   `json:"book"`
	Chapter int      `json:"chapter"`
	Verses  []*Verse `json:"verses"`
}

// VerseFailure records a verse that could not be scraped.
type VerseFailure struct {
	Book     string `json:"book"`
	Chapter  int    `json:"chapter"`
	Verse    int    `json:"verse"`
	Category string `json:"category"`
	Err      error  `json:"-"`
}

// ScrapeResult holds the overall result of a scraping run.
type ScrapeResult struct {
	StartTime    time.Time
	EndTime      time.Time
	VerseCount   int
	ChapterCount int
	ErrorCount   int
	Failures     []VerseFailure
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
}
