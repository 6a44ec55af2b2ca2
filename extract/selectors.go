package extract

import "strings"

// Selectors names the page regions the extractor reads. They are data, not
// code, so fixtures and a changed site layout only require new values here.
type Selectors struct {
	// ParallelRegion holds the parallel-translation block.
	ParallelRegion string
	// VersionLabel marks the start of one translation inside the region.
	VersionLabel string
	// LexiconHeading marks the interlinear section heading.
	LexiconHeading string
	// EnglishWord marks the start of one interlinear entry.
	EnglishWord string
	// Classes of the per-entry spans that follow each EnglishWord.
	HebrewWordClass string
	GreekWordClass  string
	TranslitClass   string
	ParseClass      string
	StrongsClass    string
	DefinitionClass string
	// CrossRefRegion holds the cross-reference list.
	CrossRefRegion string
	// CrossRefEntry marks one cross-reference inside the region.
	CrossRefEntry string
}

// DefaultSelectors returns the selector set for the BibleHub verse layout.
func DefaultSelectors() Selectors {
	return Selectors{
		ParallelRegion:  "div#par",
		VersionLabel:    "span.versiontext",
		LexiconHeading:  "div.vheading",
		EnglishWord:     "span.word",
		HebrewWordClass: "heb",
		GreekWordClass:  "grk",
		TranslitClass:   "translit",
		ParseClass:      "parse",
		StrongsClass:    "str",
		DefinitionClass: "str2",
		CrossRefRegion:  "div#crf",
		CrossRefEntry:   "span.crossverse",
	}
}

func (s Selectors) withDefaults() Selectors {
	def := DefaultSelectors()
	if s.ParallelRegion == "" {
		s.ParallelRegion = def.ParallelRegion
	}
	if s.VersionLabel == "" {
		s.VersionLabel = def.VersionLabel
	}
	if s.LexiconHeading == "" {
		s.LexiconHeading = def.LexiconHeading
	}
	if s.EnglishWord == "" {
		s.EnglishWord = def.EnglishWord
	}
	if s.HebrewWordClass == "" {
		s.HebrewWordClass = def.HebrewWordClass
	}
	if s.GreekWordClass == "" {
		s.GreekWordClass = def.GreekWordClass
	}
	if s.TranslitClass == "" {
		s.TranslitClass = def.TranslitClass
	}
	if s.ParseClass == "" {
		s.ParseClass = def.ParseClass
	}
	if s.StrongsClass == "" {
		s.StrongsClass = def.StrongsClass
	}
	if s.DefinitionClass == "" {
		s.DefinitionClass = def.DefinitionClass
	}
	if s.CrossRefRegion == "" {
		s.CrossRefRegion = def.CrossRefRegion
	}
	if s.CrossRefEntry == "" {
		s.CrossRefEntry = def.CrossRefEntry
	}
	return s
}

// versionLabelClass strips the element prefix from the VersionLabel
// selector, leaving the bare class used during sibling walks.
func (s Selectors) versionLabelClass() string {
	return classOf(s.VersionLabel)
}

func (s Selectors) crossRefEntryClass() string {
	return classOf(s.CrossRefEntry)
}

func classOf(selector string) string {
	if i := strings.LastIndex(selector, "."); i >= 0 {
		return selector[i+1:]
	}
	return selector
}

type versionMapping struct {
	Name   string
	Abbrev string
}

// defaultVersionMappings returns the target translations in the order they
// are checked against version labels.
func defaultVersionMappings() []versionMapping {
	return []versionMapping{
		{Name: "New International Version", Abbrev: "NIV"},
		{Name: "New Living Translation", Abbrev: "NLT"},
		{Name: "English Standard Version", Abbrev: "ESV"},
		{Name: "New King James Version", Abbrev: "NKJV"},
	}
}
