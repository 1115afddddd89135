package hyphen

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/language"

	"github.com/inkdot-dev/inkpress/pkg/book"
)

// SoftHyphen is the break-opportunity marker inserted into words.
const SoftHyphen = '­'

// minWordLen is the shortest word that receives break points. Shorter words
// never benefit from breaking on a 480px line.
const minWordLen = 6

//go:embed patterns/en.txt
var patternsEN []byte

//go:embed patterns/de.txt
var patternsDE []byte

// Dict is a compiled pattern dictionary for one language.
type Dict struct {
	tag      language.Tag
	patterns map[string][]uint8 // letters -> inter-letter scores, len(letters)+1
	maxLen   int                // longest pattern in runes
	minLeft  int                // no break within the first minLeft letters
	minRight int                // no break within the last minRight letters
}

// Load compiles a pattern file. The format is whitespace-separated Liang
// patterns: lowercase letters interleaved with digit scores, with '.'
// anchoring word boundaries (e.g. ".ach4", "a1bo", "4m1p"). Lines starting
// with '%' are comments.
func Load(data []byte, tag language.Tag) (*Dict, error) {
	d := &Dict{
		tag:      tag,
		patterns: make(map[string][]uint8),
		minLeft:  2,
		minRight: 3,
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "%") {
			continue
		}
		for _, pat := range strings.Fields(line) {
			if err := d.add(pat); err != nil {
				return nil, fmt.Errorf("pattern %q: %w", pat, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// add compiles one pattern into the lookup map.
func (d *Dict) add(pat string) error {
	var letters []rune
	var scores []uint8
	scores = append(scores, 0)
	for _, r := range pat {
		switch {
		case r >= '0' && r <= '9':
			scores[len(scores)-1] = uint8(r - '0')
		case r == '.' || unicode.IsLetter(r):
			letters = append(letters, unicode.ToLower(r))
			scores = append(scores, 0)
		default:
			return fmt.Errorf("invalid rune %q", r)
		}
	}
	if len(letters) == 0 {
		return fmt.Errorf("no letters")
	}
	if len(letters) > d.maxLen {
		d.maxLen = len(letters)
	}
	d.patterns[string(letters)] = scores
	return nil
}

// Tag returns the language the dictionary was compiled for.
func (d *Dict) Tag() language.Tag { return d.tag }

// embedded dictionaries, compiled on first use.
var (
	registryOnce sync.Once
	registry     []*Dict
	matcher      language.Matcher
)

func buildRegistry() {
	en, err := Load(patternsEN, language.English)
	if err != nil {
		panic(fmt.Sprintf("hyphen: embedded en patterns: %v", err))
	}
	de, err := Load(patternsDE, language.German)
	if err != nil {
		panic(fmt.Sprintf("hyphen: embedded de patterns: %v", err))
	}
	registry = []*Dict{en, de}
	matcher = language.NewMatcher([]language.Tag{language.English, language.German})
}

// For resolves a language hint ("en", "en-GB", "de", ...) to an embedded
// dictionary. The second return value is false when no dictionary covers the
// language; callers should then skip hyphenation rather than fail.
func For(lang string) (*Dict, bool) {
	registryOnce.Do(buildRegistry)

	tag, err := language.Parse(lang)
	if err != nil {
		return nil, false
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return nil, false
	}
	return registry[idx], true
}

// Word returns the word with soft hyphens inserted at break points. Existing
// soft hyphens are stripped first, so the operation is idempotent. Words
// shorter than six runes and words containing non-letters are returned
// unchanged.
func (d *Dict) Word(w string) string {
	clean := strings.Map(func(r rune) rune {
		if r == SoftHyphen {
			return -1
		}
		return r
	}, w)

	runes := []rune(clean)
	if len(runes) < minWordLen {
		return clean
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) {
			return clean
		}
	}

	breaks := d.breakpoints(runes)
	if len(breaks) == 0 {
		return clean
	}

	var sb strings.Builder
	prev := 0
	for _, bp := range breaks {
		sb.WriteString(string(runes[prev:bp]))
		sb.WriteRune(SoftHyphen)
		prev = bp
	}
	sb.WriteString(string(runes[prev:]))
	return sb.String()
}

// breakpoints returns rune offsets at which the word may break, in order.
func (d *Dict) breakpoints(word []rune) []int {
	// Work on the lowercase word wrapped in boundary dots.
	wrapped := make([]rune, 0, len(word)+2)
	wrapped = append(wrapped, '.')
	for _, r := range word {
		wrapped = append(wrapped, unicode.ToLower(r))
	}
	wrapped = append(wrapped, '.')

	// scores[i] applies between wrapped[i-1] and wrapped[i].
	scores := make([]uint8, len(wrapped)+1)
	for start := 0; start < len(wrapped); start++ {
		limit := len(wrapped) - start
		if limit > d.maxLen {
			limit = d.maxLen
		}
		for n := 1; n <= limit; n++ {
			pat, ok := d.patterns[string(wrapped[start:start+n])]
			if !ok {
				continue
			}
			for i, s := range pat {
				if s > scores[start+i] {
					scores[start+i] = s
				}
			}
		}
	}

	var breaks []int
	for i := 1; i < len(word); i++ {
		// scores index i+1 sits between word[i-1] and word[i].
		if scores[i+1]%2 == 0 {
			continue
		}
		if i < d.minLeft || len(word)-i < d.minRight {
			continue
		}
		breaks = append(breaks, i)
	}
	return breaks
}

// Block returns a new TextBlock with soft hyphens inserted into every
// eligible word of every run. The input block is not modified.
func (d *Dict) Block(tb *book.TextBlock) *book.TextBlock {
	out := &book.TextBlock{Heading: tb.Heading, Runs: make([]book.Run, len(tb.Runs))}
	for i, run := range tb.Runs {
		nr := run
		nr.Text = d.text(run.Text)
		out.Runs[i] = nr
	}
	return out
}

// Book returns a copy of the book with all text blocks hyphenated. When no
// dictionary matches the book's language the original book is returned
// unchanged along with ok=false.
func Book(b *book.Book, langHint string) (*book.Book, bool) {
	lang := langHint
	if lang == "" {
		lang = b.Language
	}
	d, ok := For(lang)
	if !ok {
		return b, false
	}

	out := b.Clone()
	for ci := range out.Chapters {
		for bi := range out.Chapters[ci].Blocks {
			blk := &out.Chapters[ci].Blocks[bi]
			if blk.Kind == book.KindText {
				blk.Text = d.Block(blk.Text)
			}
		}
	}
	return out, true
}

// text hyphenates each word of free text, leaving whitespace and punctuation
// in place.
func (d *Dict) text(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	flushWord := func(word []rune) {
		if len(word) > 0 {
			sb.WriteString(d.Word(string(word)))
		}
	}

	var word []rune
	for _, r := range s {
		if unicode.IsLetter(r) || r == SoftHyphen {
			word = append(word, r)
			continue
		}
		flushWord(word)
		word = word[:0]
		sb.WriteRune(r)
	}
	flushWord(word)
	return sb.String()
}
