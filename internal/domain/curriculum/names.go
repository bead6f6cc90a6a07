package curriculum

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// chapterPrefixes are stripped from normalized names. Longer variants come first.
var chapterPrefixes = []string{"surah", "surat", "sura", "chapter", "سوره", "سورة"}

// articlePrefixes are definite-article spellings dropped to build secondary aliases.
var articlePrefixes = []string{"al", "an", "ar", "as", "ash", "at", "az", "ad", "adh", "ال"}

var (
	exactNames      map[string]int
	normalizedNames map[string]int
)

// stripMarks decomposes text and drops combining marks, so Arabic diacritics and
// hamza carriers collapse onto the bare letter (أ, إ, آ -> ا).
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

func buildNameIndex() {
	exactNames = make(map[string]int, ChapterCount*2)
	normalizedNames = make(map[string]int, ChapterCount*4)

	for n := FirstChapter; n <= LastChapter; n++ {
		c := chapters[n]
		exactNames[c.Name] = n
		exactNames[c.ArabicName] = n

		for _, name := range []string{c.Name, c.ArabicName} {
			key := normalizeName(name)
			normalizedNames[key] = n
		}
	}

	// Article-less aliases never shadow a full name.
	for n := FirstChapter; n <= LastChapter; n++ {
		c := chapters[n]
		for _, name := range []string{c.Name, c.ArabicName} {
			alias, ok := withoutArticle(name)
			if !ok {
				continue
			}
			if _, taken := normalizedNames[alias]; !taken {
				normalizedNames[alias] = n
			}
		}
	}
}

// ChapterByName resolves a chapter by its transliterated or Arabic name.
// An exact match wins; otherwise the name is normalized (case, diacritics,
// punctuation and "chapter" prefixes such as "Surah" or "سورة" removed) and looked up again.
func ChapterByName(name string) (Chapter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Chapter{}, shared.ErrChapterNotFound
	}

	if n, ok := exactNames[name]; ok {
		return chapters[n], nil
	}

	key := normalizeName(name)
	if n, ok := normalizedNames[key]; ok {
		return chapters[n], nil
	}

	return Chapter{}, shared.ErrChapterNotFound
}

// normalizeName folds a chapter name to its lookup key.
func normalizeName(name string) string {
	s, _, err := transform.String(stripMarks(), name)
	if err != nil {
		s = name
	}
	s = strings.ToLower(strings.TrimSpace(s))

	for _, p := range chapterPrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimPrefix(s, p)
			break
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case 'ة':
			r = 'ه'
		case 'ى':
			r = 'ي'
		case 'ـ':
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// withoutArticle returns the normalized key of name with its leading article removed.
func withoutArticle(name string) (string, bool) {
	s, _, err := transform.String(stripMarks(), name)
	if err != nil {
		s = name
	}
	s = strings.ToLower(strings.TrimSpace(s))

	for _, art := range articlePrefixes {
		for _, sep := range []string{"-", " ", ""} {
			prefix := art + sep
			if sep == "" && art != "ال" {
				continue
			}
			if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
				key := normalizeName(strings.TrimPrefix(s, prefix))
				return key, key != ""
			}
		}
	}
	return "", false
}
