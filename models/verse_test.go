package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestVerseJSONShape(t *testing.T) {
	verse := &Verse{
		Reference: "Genesis 1:1",
		Book:      "Genesis",
		Chapter:   1,
		Verse:     1,
		Translations: []Translation{
			{Version: "ESV", Text: "In the beginning, God created the heavens and the earth."},
		},
		OriginalWords: []OriginalWord{
			{
				EnglishWord:     "In the beginning",
				Word:            "בְּרֵאשִׁ֖ית",
				Transliteration: "bə-rê-šîṯ",
				StrongsNumber:   "7225",
				PartOfSpeech:    "Preposition-b | Noun - feminine singular",
				Definition:      "the first, in place, time, order or rank",
				Language:        Hebrew,
			},
		},
		CrossReferences: []CrossReference{
			{Reference: "John 1:1-3", Text: "In the beginning was the Word"},
		},
	}

	data, err := json.Marshal(verse)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal into map: %v", err)
	}
	for _, key := range []string{"reference", "book", "chapter", "verse", "translations", "original_words", "cross_references"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("serialized verse missing key %q:\n%s", key, data)
		}
	}

	var got Verse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(&got, verse) {
		t.Fatalf("round trip mismatch:\ngot:  %+v\nwant: %+v", got, *verse)
	}
}

func TestOriginalWordJSONKeys(t *testing.T) {
	word := OriginalWord{
		EnglishWord:   "God",
		Word:          "Θεός",
		StrongsNumber: "2316",
		Language:      Greek,
	}

	data, err := json.Marshal(word)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal into map: %v", err)
	}
	for _, key := range []string{"english_word", "word", "strongs_number", "language"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("serialized word missing key %q:\n%s", key, data)
		}
	}
	if string(fields["language"]) != `"greek"` {
		t.Fatalf("language=%s, want \"greek\"", fields["language"])
	}
}
