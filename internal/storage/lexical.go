package storage

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// Lexical languages. Each name is also a PostgreSQL text search configuration.
const (
	LanguageSimple  = "simple"
	LanguageEnglish = "english"
	LanguageFrench  = "french"

	// DefaultLanguage matches the records' dominant language
	DefaultLanguage = LanguageFrench
)

var (
	// ErrUnsupportedLanguage is returned for a language without a stemmer
	ErrUnsupportedLanguage = errors.New("unsupported text search language")
	// ErrLanguageChanged is returned when the configured language differs
	// from the one the lexical index was built with
	ErrLanguageChanged = errors.New("text search language changed")
)

// languages lists the accepted languages with their query stop words. Every
// entry except simple has a snowball stemmer and a PostgreSQL configuration
// of the same name, so the name is safe to place in DDL.
var languages = map[string]map[string]struct{}{
	LanguageSimple:  nil,
	LanguageEnglish: englishStopWords,
	LanguageFrench:  frenchStopWords,
	"spanish":       nil,
	"russian":       nil,
	"swedish":       nil,
	"norwegian":     nil,
	"hungarian":     nil,
}

var englishStopWords = stopSet(
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "from", "has", "have",
	"i", "if", "in", "into", "is", "it", "its", "me", "my", "near", "not", "of", "on", "or",
	"our", "s", "t", "that", "the", "their", "there", "these", "this", "to", "was", "we",
	"were", "what", "when", "where", "which", "who", "why", "will", "with", "you", "your",
)

// frenchStopWords covers articles, pronouns, prepositions, elided forms and
// the short forms of être and avoir
var frenchStopWords = stopSet(
	"a", "ai", "as", "au", "aux", "avec", "c", "ce", "ces", "cet", "cette", "d", "dans",
	"de", "des", "du", "elle", "elles", "en", "est", "et", "été", "eu", "eux", "il", "ils",
	"j", "je", "l", "la", "le", "les", "leur", "leurs", "lui", "m", "ma", "mais", "me",
	"mes", "moi", "mon", "n", "ne", "ni", "nos", "notre", "nous", "on", "ont", "ou", "où",
	"par", "pas", "pour", "qu", "que", "qui", "s", "sa", "se", "ses", "si", "son", "sont",
	"sur", "t", "ta", "te", "tes", "toi", "ton", "tu", "un", "une", "vos", "votre", "vous",
	"y", "à", "ça", "ès",
)

func stopSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// analyzer turns free text into lexical terms for one language
type analyzer struct {
	language  string
	stopWords map[string]struct{}
}

func newAnalyzer(language string) (analyzer, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = DefaultLanguage
	}
	stop, ok := languages[language]
	if !ok {
		return analyzer{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}
	return analyzer{language: language, stopWords: stop}, nil
}

// terms splits text into lowercase word tokens with stop words and
// duplicates removed. Only letters and digits survive, so the result is
// safe to quote into an FTS expression.
func (a analyzer) terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := a.stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

func (a analyzer) stem(word string) string {
	if a.language == LanguageSimple {
		return word
	}
	stemmed, err := snowball.Stem(word, a.language, true)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}

// stemmedTerms returns the stems of terms(text) without duplicates
func (a analyzer) stemmedTerms(text string) []string {
	terms := a.terms(text)
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		s := a.stem(t)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// indexText is the stemmed form of text stored for FTS5. Word order and
// repetition are kept so bm25 still sees term frequency.
func (a analyzer) indexText(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := a.stopWords[w]; stop {
			continue
		}
		out = append(out, a.stem(w))
	}
	return strings.Join(out, " ")
}

// ftsMatch builds an FTS5 MATCH expression that ORs the quoted stems
func (a analyzer) ftsMatch(query string) string {
	terms := a.stemmedTerms(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// websearch builds a websearch_to_tsquery input that ORs the terms.
// PostgreSQL applies its own stemming.
func (a analyzer) websearch(query string) string {
	return strings.Join(a.terms(query), " or ")
}
