package normalization

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/unicode/norm"
)

// RuleFunc is a single text transformation. It is pure: the only error it
// returns comes from the regex engine (a match timeout on pathological input).
type RuleFunc func(text, replacement string) (string, error)

// Rule is one catalog entry
type Rule struct {
	Name               string
	Apply              RuleFunc
	DefaultReplacement string
	// UsesReplacement is false for rules with fixed output (q, laughter,
	// lowercase/diacritic) which ignore the configured replacement.
	UsesReplacement bool
	Description     string
}

// LaughterPattern collapses one laughter syllable
type LaughterPattern struct {
	Syllable string
	re       *regexp2.Regexp
}

// Apply replaces every run of the syllable with a single occurrence
func (p LaughterPattern) Apply(text string) (string, error) {
	return p.re.Replace(text, p.Syllable, -1, -1)
}

var (
	whiteSpaceRegex        = mustCompile(`\s+`, regexp2.None)
	punctuationRegex       = mustCompile(`[^\w\s]`, regexp2.None)
	digitRegex             = mustCompile(`\d+`, regexp2.None)
	mentionRegex           = mustCompile(`(@|#)[A-Za-z0-9]+`, regexp2.None)
	emailRegex             = mustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`, regexp2.None)
	singleWordRegex        = mustCompile(`(?<!\S)[^aeiouy](?!\S)`, regexp2.None)
	duplicatedLetterRegex  = mustCompile(`(?!l|r)(.)\1{1,}`, regexp2.None)
	isolatedConsonantRegex = mustCompile(`(?<=\s)[bcdfghjklmnpqrstvwxyz]{2,}(?=\s)`, regexp2.None)
	reRegex                = mustCompile(`(?<!\S)re(?!\S)`, regexp2.None)
	queRegex               = mustCompile(`\s?(ke|k|qe|q)\s`, regexp2.None)
	quieRegex              = mustCompile(`\s?(kie|qie)`, regexp2.None)

	// URL heuristic after https://gist.github.com/dperini/729294. The host
	// character class is kept exactly as written upstream, doubled
	// backslashes included.
	urlRegex = mustCompile(
		`(?:^|(?<![\w\/\.]))`+
			// protocol identifier
			`(?:(?:https?:\/\/|ftp:\/\/|www\d{0,3}\.))`+
			// user:pass authentication
			`(?:\S+(?::\S*)?@)?`+`(?:`+
			// private & local networks are excluded
			`(?!(?:10|127)(?:\.\d{1,3}){3})`+
			`(?!(?:169\.254|192\.168)(?:\.\d{1,3}){2})`+
			`(?!172\.(?:1[6-9]|2\d|3[0-1])(?:\.\d{1,3}){2})`+
			// dotted octets, no 0.0.0.0, nothing >= 224.0.0.0
			`(?:[1-9]\d?|1\d\d|2[01]\d|22[0-3])`+
			`(?:\.(?:1?\d{1,2}|2[0-4]\d|25[0-5])){2}`+
			`(?:\.(?:[1-9]\d?|1\d\d|2[0-4]\d|25[0-4]))`+
			`|`+
			// host name
			`(?:(?:[a-z\\u00a1-\\uffff0-9]-?)*[a-z\\u00a1-\\uffff0-9]+)`+
			// domain name
			`(?:\.(?:[a-z\\u00a1-\\uffff0-9]-?)*[a-z\\u00a1-\\uffff0-9]+)*`+
			// TLD
			`(?:\.(?:[a-z\\u00a1-\\uffff]{2,}))`+`|`+`(?:(localhost))`+`)`+
			// port
			`(?::\d{2,5})?`+
			// resource path, never swallowing ), ] or }
			`(?:\/[^\)\]\}\s]*)?`,
		regexp2.IgnoreCase,
	)

	// LaughterPatterns are applied in this order by normalize_laught.
	// The order matters: an earlier syllable can consume letters a later
	// one would have matched.
	LaughterPatterns = []LaughterPattern{
		{Syllable: "ja", re: mustCompile(`((ja|aj|ha){3,})`, regexp2.None)},
		{Syllable: "je", re: mustCompile(`((je|ej|he){3,})`, regexp2.None)},
		{Syllable: "ji", re: mustCompile(`((ji|ij){3,})`, regexp2.None)},
		{Syllable: "jo", re: mustCompile(`((jo|oj){3,})`, regexp2.None)},
		{Syllable: "ju", re: mustCompile(`((ju|uj){3,})`, regexp2.None)},
	}

	compiled = []*regexp2.Regexp{
		whiteSpaceRegex, punctuationRegex, digitRegex, mentionRegex, emailRegex,
		singleWordRegex, duplicatedLetterRegex, isolatedConsonantRegex, reRegex,
		queRegex, quieRegex, urlRegex,
	}
)

func mustCompile(expr string, opts regexp2.RegexOptions) *regexp2.Regexp {
	return regexp2.MustCompile(expr, opts)
}

// SetMatchTimeout bounds the time a single rule may spend on one record.
// Zero disables the bound. It must be called during startup, before any
// normalization runs.
func SetMatchTimeout(d time.Duration) {
	if d <= 0 {
		d = regexp2.DefaultMatchTimeout
	}
	for _, re := range compiled {
		re.MatchTimeout = d
	}
	for _, p := range LaughterPatterns {
		p.re.MatchTimeout = d
	}
}

// regexRule builds a RuleFunc substituting every match of re
func regexRule(re *regexp2.Regexp) RuleFunc {
	return func(text, replacement string) (string, error) {
		return re.Replace(text, translateReplacement(replacement), -1, -1)
	}
}

// CollapseLaughter runs the given laughter patterns in order
func CollapseLaughter(text string, patterns []LaughterPattern) (string, error) {
	var err error
	for _, p := range patterns {
		if text, err = p.Apply(text); err != nil {
			return "", err
		}
	}
	return text, nil
}

func laughterRule(text, _ string) (string, error) {
	return CollapseLaughter(text, LaughterPatterns)
}

// qRule expands the "q"/"k" shorthands in two stages, the second one
// running on the output of the first.
func qRule(text, _ string) (string, error) {
	text, err := queRegex.Replace(text, " que ", -1, -1)
	if err != nil {
		return "", err
	}
	return quieRegex.Replace(text, " quie", -1, -1)
}

// FoldLowercaseDiacritic transliterates to ASCII and lowercases. Applying
// it twice gives the same result as applying it once.
func FoldLowercaseDiacritic(text string) string {
	return strings.ToLower(unidecode.Unidecode(norm.NFC.String(text)))
}

func lowercaseDiacriticRule(text, _ string) (string, error) {
	return FoldLowercaseDiacritic(text), nil
}

// StripPunctuation replaces every character that is neither a word
// character nor whitespace
func StripPunctuation(text, replacement string) (string, error) {
	return punctuationRegex.Replace(text, translateReplacement(replacement), -1, -1)
}
