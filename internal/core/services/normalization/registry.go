package normalization

import (
	"fmt"
	"sort"
)

// Catalog keys, matching the handler keys of a pipeline document
const (
	RuleWhitespaces        = "normalize_whitespaces"
	RulePunctuation        = "normalize_punctuation"
	RuleLowercaseDiacritic = "normalize_lowercase_diacritic"
	RuleDuplicatedLetter   = "normalize_duplicated_letter"
	RuleMention            = "normalize_mention"
	RuleURL                = "normalize_url"
	RuleEmail              = "normalize_email"
	RuleDigit              = "normalize_digit"
	RuleSingleWord         = "normalize_single_word"
	RuleIsolatedConsonant  = "normalize_isolated_consonant"
	RuleQ                  = "normalize_q"
	RuleRe                 = "normalize_re"
	RuleLaughter           = "normalize_laught"
)

// Global catalog. Populated in init and read-only afterwards, so lookups
// need no locking.
var (
	catalog = make(map[string]Rule)
	aliases = make(map[string]string)
)

func register(rule Rule, ruleAliases ...string) {
	if _, exists := catalog[rule.Name]; exists {
		panic(fmt.Sprintf("normalization rule %q registered twice", rule.Name))
	}
	catalog[rule.Name] = rule
	for _, alias := range ruleAliases {
		aliases[alias] = rule.Name
	}
}

// LookupRule retrieves a rule by name or alias
func LookupRule(name string) (Rule, bool) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	rule, ok := catalog[name]
	return rule, ok
}

// MustRule is LookupRule for names known at compile time
func MustRule(name string) Rule {
	rule, ok := LookupRule(name)
	if !ok {
		panic(fmt.Sprintf("normalization rule %q not found. Available: %v", name, RuleNames()))
	}
	return rule
}

// RuleNames returns the canonical rule names, sorted
func RuleNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RuleAliases returns the aliases pointing at name
func RuleAliases(name string) []string {
	var out []string
	for alias, canonical := range aliases {
		if canonical == name {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

func init() {
	register(Rule{
		Name:               RuleWhitespaces,
		Apply:              regexRule(whiteSpaceRegex),
		DefaultReplacement: " ",
		UsesReplacement:    true,
		Description:        "collapse whitespace runs ('mi   nombre  ' -> 'mi nombre ')",
	}, "normalize_white_spaces")
	register(Rule{
		Name:               RulePunctuation,
		Apply:              StripPunctuation,
		DefaultReplacement: "",
		UsesReplacement:    true,
		Description:        "replace each non-word, non-space character ('mi... nombre' -> 'mi nombre')",
	})
	register(Rule{
		Name:        RuleLowercaseDiacritic,
		Apply:       lowercaseDiacriticRule,
		Description: "transliterate to ASCII and lowercase ('MI Nómbre' -> 'mi nombre')",
	})
	register(Rule{
		Name:               RuleDuplicatedLetter,
		Apply:              regexRule(duplicatedLetterRegex),
		DefaultReplacement: `\1`,
		UsesReplacement:    true,
		Description:        "collapse repeated characters except l and r ('locoooo' -> 'loco')",
	})
	register(Rule{
		Name:               RuleMention,
		Apply:              regexRule(mentionRegex),
		DefaultReplacement: "<<MENTION>>",
		UsesReplacement:    true,
		Description:        "replace @mentions and #hashtags",
	})
	register(Rule{
		Name:               RuleURL,
		Apply:              regexRule(urlRegex),
		DefaultReplacement: "<<URL>>",
		UsesReplacement:    true,
		Description:        "replace URLs",
	})
	register(Rule{
		Name:               RuleEmail,
		Apply:              regexRule(emailRegex),
		DefaultReplacement: "<<EMAIL>>",
		UsesReplacement:    true,
		Description:        "replace e-mail addresses",
	})
	register(Rule{
		Name:               RuleDigit,
		Apply:              regexRule(digitRegex),
		DefaultReplacement: "",
		UsesReplacement:    true,
		Description:        "replace digit runs ('mi numero 3322' -> 'mi numero ')",
	})
	register(Rule{
		Name:               RuleSingleWord,
		Apply:              regexRule(singleWordRegex),
		DefaultReplacement: " ",
		UsesReplacement:    true,
		Description:        "replace standalone single non-vowel characters ('mi s nombre' -> 'mi   nombre')",
	})
	register(Rule{
		Name:               RuleIsolatedConsonant,
		Apply:              regexRule(isolatedConsonantRegex),
		DefaultReplacement: "",
		UsesReplacement:    true,
		Description:        "replace consonant-only words between spaces ('mi sbl nombre' -> 'mi  nombre')",
	})
	register(Rule{
		Name:        RuleQ,
		Apply:       qRule,
		Description: "expand q/k shorthands ('q pasa' -> ' que pasa', 'kien' -> ' quien')",
	})
	register(Rule{
		Name:               RuleRe,
		Apply:              regexRule(reRegex),
		DefaultReplacement: "muy",
		UsesReplacement:    true,
		Description:        "replace the standalone intensifier 're' ('re loco' -> 'muy loco')",
	})
	register(Rule{
		Name:        RuleLaughter,
		Apply:       laughterRule,
		Description: "collapse laughter runs ('jajajajaja' -> 'ja')",
	}, "normalize_laughter")
}
