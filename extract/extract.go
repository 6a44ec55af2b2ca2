// Package extract turns raw verse-page markup into structured field groups:
// parallel translations, interlinear lexicon words, and cross-references.
// Extraction is pure over the parsed document and never touches the network,
// so it can be tested against fixtures.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/aluiziolira/go-scrape-bible/models"
)

// Error indicates a page that could not be recognized as a verse page at
// all. Individual missing field groups are not errors; they yield empty
// sequences.
type Error struct {
	Reason string
	Err    error
}

func (e Error) Error() string {
	if e.Err != nil {
		return fmt.Errorf("extract: %s: %w", e.Reason, e.Err).Error()
	}
	return "extract: " + e.Reason
}

func (e Error) Unwrap() error {
	return e.Err
}

// Result bundles the three extracted field groups for one verse page.
type Result struct {
	Translations    []models.Translation
	OriginalWords   []models.OriginalWord
	CrossReferences []models.CrossReference
}

// Extractor parses verse pages using a configurable selector set.
type Extractor struct {
	sel      Selectors
	versions []versionMapping
}

// New builds an extractor. Zero-value selector fields fall back to the
// defaults; a nil versions map keeps the default target set.
func New(sel Selectors, versions map[string]string) *Extractor {
	sel = sel.withDefaults()
	mappings := defaultVersionMappings()
	if versions != nil {
		mappings = mappings[:0]
		for name, abbrev := range versions {
			mappings = append(mappings, versionMapping{Name: name, Abbrev: abbrev})
		}
		// Longest name first, so a version whose name contains another
		// configured name always wins the substring match.
		sort.Slice(mappings, func(i, j int) bool {
			if len(mappings[i].Name) != len(mappings[j].Name) {
				return len(mappings[i].Name) > len(mappings[j].Name)
			}
			return mappings[i].Name < mappings[j].Name
		})
	}
	return &Extractor{sel: sel, versions: mappings}
}

// Extract parses markup and pulls out all field groups. The language selects
// which lexicon region (Hebrew or Greek) to read; it is decided by the
// caller from book identity.
func (e *Extractor) Extract(markup []byte, lang models.Language) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, Error{Reason: "unparseable markup", Err: err}
	}

	if doc.Find(e.sel.ParallelRegion).Length() == 0 &&
		doc.Find(e.sel.LexiconHeading).Length() == 0 &&
		doc.Find(e.sel.CrossRefRegion).Length() == 0 {
		return nil, Error{Reason: "page has no recognizable verse regions"}
	}

	return &Result{
		Translations:    e.translations(doc),
		OriginalWords:   e.originalWords(doc, lang),
		CrossReferences: e.crossReferences(doc),
	}, nil
}

// Translations extracts the parallel-translation pairs in presentation
// order, filtered to the configured target versions.
func (e *Extractor) Translations(markup []byte) ([]models.Translation, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, Error{Reason: "unparseable markup", Err: err}
	}
	return e.translations(doc), nil
}

func (e *Extractor) translations(doc *goquery.Document) []models.Translation {
	translations := []models.Translation{}

	region := doc.Find(e.sel.ParallelRegion)
	if region.Length() == 0 {
		return translations
	}

	region.Find(e.sel.VersionLabel).Each(func(_ int, span *goquery.Selection) {
		label := strings.TrimSpace(span.Find("a").First().Text())
		if label == "" {
			return
		}
		abbrev := e.versionAbbrev(label)
		if abbrev == "" {
			return
		}

		text := collapseSpace(siblingText(span.Get(0), e.sel))
		if text == "" {
			return
		}
		translations = append(translations, models.Translation{Version: abbrev, Text: text})
	})

	return translations
}

func (e *Extractor) versionAbbrev(label string) string {
	for _, m := range e.versions {
		if strings.Contains(label, m.Name) {
			return m.Abbrev
		}
	}
	return ""
}

// siblingText gathers the text run following a version-label span: text
// nodes and <i> contents, stopping at the next version label, a paragraph
// marker span, or a new section div. <br> tags are skipped.
func siblingText(node *html.Node, sel Selectors) string {
	var parts []string
	for n := node.NextSibling; n != nil; n = n.NextSibling {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "span":
				if hasClass(n, sel.versionLabelClass()) || hasClass(n, "p") {
					return strings.Join(parts, " ")
				}
			case "div":
				return strings.Join(parts, " ")
			case "br":
				continue
			case "i":
				parts = append(parts, nodeText(n))
			}
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

var strongsRe = regexp.MustCompile(`strongs_(\d+)`)

// OriginalWords extracts the interlinear lexicon entries for the given
// language.
func (e *Extractor) OriginalWords(markup []byte, lang models.Language) ([]models.OriginalWord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, Error{Reason: "unparseable markup", Err: err}
	}
	return e.originalWords(doc, lang), nil
}

func (e *Extractor) originalWords(doc *goquery.Document, lang models.Language) []models.OriginalWord {
	words := []models.OriginalWord{}

	headingText, wordClass := "Greek", e.sel.GreekWordClass
	if lang == models.Hebrew {
		headingText, wordClass = "Hebrew", e.sel.HebrewWordClass
	}

	var heading *goquery.Selection
	doc.Find(e.sel.LexiconHeading).EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if strings.Contains(h.Text(), headingText) {
			heading = h
			return false
		}
		return true
	})
	if heading == nil {
		return words
	}

	parent := heading.Parent()
	if parent.Length() == 0 {
		return words
	}

	parent.Find(e.sel.EnglishWord).Each(func(_ int, span *goquery.Selection) {
		node := span.Get(0)

		original := textOfNext(node, wordClass)
		if original == "" {
			return
		}

		word := models.OriginalWord{
			EnglishWord:     strings.TrimSpace(span.Text()),
			Word:            original,
			Transliteration: strings.Trim(textOfNext(node, e.sel.TranslitClass), "()"),
			PartOfSpeech:    textOfNext(node, e.sel.ParseClass),
			Definition:      textOfNext(node, e.sel.DefinitionClass),
			Language:        lang,
		}

		if strSpan := nextByClass(node, e.sel.StrongsClass); strSpan != nil {
			if href := firstLinkHref(strSpan); href != "" {
				if m := strongsRe.FindStringSubmatch(href); m != nil {
					word.StrongsNumber = m[1]
				}
			}
		}

		words = append(words, word)
	})

	return words
}

// CrossReferences extracts the reference-list entries in site order.
func (e *Extractor) CrossReferences(markup []byte) ([]models.CrossReference, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, Error{Reason: "unparseable markup", Err: err}
	}
	return e.crossReferences(doc), nil
}

func (e *Extractor) crossReferences(doc *goquery.Document) []models.CrossReference {
	refs := []models.CrossReference{}

	region := doc.Find(e.sel.CrossRefRegion)
	if region.Length() == 0 {
		return refs
	}

	region.Find(e.sel.CrossRefEntry).Each(func(_ int, span *goquery.Selection) {
		reference := strings.TrimSpace(span.Find("a").First().Text())
		if reference == "" {
			return
		}

		var parts []string
		for n := span.Get(0).NextSibling; n != nil; n = n.NextSibling {
			if n.Type == html.ElementNode {
				if n.Data == "span" && (hasClass(n, e.sel.crossRefEntryClass()) || hasClass(n, "p")) {
					break
				}
				continue
			}
			if n.Type == html.TextNode {
				if text := strings.TrimSpace(n.Data); text != "" {
					parts = append(parts, text)
				}
			}
		}

		refs = append(refs, models.CrossReference{
			Reference: reference,
			Text:      strings.Join(parts, " "),
		})
	})

	return refs
}

// textOfNext returns the trimmed text of the next element (in document
// order) carrying the given class, or "".
func textOfNext(node *html.Node, class string) string {
	if n := nextByClass(node, class); n != nil {
		return strings.TrimSpace(nodeText(n))
	}
	return ""
}

// nextByClass walks forward in document order from node looking for a span
// with the given class. The walk is unbounded by the node's parent, matching
// how entries interleave on the page.
func nextByClass(node *html.Node, class string) *html.Node {
	for n := nextInDocument(node); n != nil; n = nextInDocument(n) {
		if n.Type == html.ElementNode && n.Data == "span" && hasClass(n, class) {
			return n
		}
	}
	return nil
}

// nextInDocument yields the successor of n in depth-first document order.
func nextInDocument(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for ; n != nil; n = n.Parent {
		if n.NextSibling != nil {
			return n.NextSibling
		}
	}
	return nil
}

func firstLinkHref(node *html.Node) string {
	for n := node.FirstChild; n != nil; n = nextWithin(node, n) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					return attr.Val
				}
			}
		}
	}
	return ""
}

// nextWithin yields the depth-first successor of n bounded by root.
func nextWithin(root, n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for ; n != nil && n != root; n = n.Parent {
		if n.NextSibling != nil {
			return n.NextSibling
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

var spaceRe = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
