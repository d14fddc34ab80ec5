package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyRule(t *testing.T, name, text string) string {
	t.Helper()
	rule, ok := LookupRule(name)
	require.True(t, ok, "rule %s not registered", name)
	out, err := rule.Apply(text, rule.DefaultReplacement)
	require.NoError(t, err)
	return out
}

func TestRules_Examples(t *testing.T) {
	tests := []struct {
		rule     string
		input    string
		expected string
	}{
		{RuleWhitespaces, "  mi   nombre  ", " mi nombre "},
		{RulePunctuation, "mi... nombre!!", "mi nombre"},
		{RulePunctuation, "¿qué tal?", "qué tal"},
		{RuleLowercaseDiacritic, "MI Nómbre es Ñandú", "mi nombre es nandu"},
		{RuleDuplicatedLetter, "locoooo", "loco"},
		{RuleMention, "hola @user y #tag", "hola <<MENTION>> y <<MENTION>>"},
		{RuleEmail, "escribime a mail@dom.com ya", "escribime a <<EMAIL>> ya"},
		{RuleDigit, "mi número 3322", "mi número "},
		{RuleSingleWord, "mi s nombre", "mi   nombre"},
		{RuleSingleWord, "hola a e y", "hola a e y"},
		{RuleIsolatedConsonant, "mi sbl nombre", "mi  nombre"},
		{RuleRe, "re loco", "muy loco"},
		{RuleRe, "tu re amiga", "tu muy amiga"},
		{RuleRe, "prefiero", "prefiero"},
		{RuleQ, "ke hacés", " que hacés"},
		{RuleQ, "qe onda", " que onda"},
		{RuleLaughter, "jajajajaja", "ja"},
		{RuleLaughter, "jujuju y jijiji", "ju y ji"},
		{RuleLaughter, "jejeje jojojo", "je jo"},
	}

	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, applyRule(t, tt.rule, tt.input))
		})
	}
}

func TestRules_URL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"scheme and query", "visita https://www.google.com/search?q=1 ya", "visita <<URL>> ya"},
		{"www prefix keeps trailing dot", "ver www.site.org.", "ver <<URL>>."},
		{"closing paren is not part of the url", "(https://a.com/x)", "(<<URL>>)"},
		{"public ip", "http://8.8.8.8/x", "<<URL>>"},
		{"private network is not a host", "visita http://192.168.1.1/x ok", "visita <<URL>>.1.1/x ok"},
		{"case insensitive", "HTTP://EJEMPLO.COM", "<<URL>>"},
		{"no scheme no www", "ejemplo.com", "ejemplo.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, applyRule(t, RuleURL, tt.input))
		})
	}
}

func TestDuplicatedLetter_KeepsDoubleLAndR(t *testing.T) {
	assert.Equal(t, "llamar", applyRule(t, RuleDuplicatedLetter, "llamar"))
	assert.Equal(t, "correr", applyRule(t, RuleDuplicatedLetter, "correr"))
	assert.Equal(t, "lluvia", applyRule(t, RuleDuplicatedLetter, "lluvia"))
	assert.Equal(t, "hermoso", applyRule(t, RuleDuplicatedLetter, "hermosooo"))
	assert.Equal(t, "jajajajaj", applyRule(t, RuleDuplicatedLetter, "jaajjajjajaj"))
}

func TestQ_TwoStages(t *testing.T) {
	// stage one leaves "kien" alone, stage two rewrites its "kie"
	out, err := queRegex.Replace("q pasa kien sos", " que ", -1, -1)
	require.NoError(t, err)
	assert.Equal(t, " que pasa kien sos", out)

	assert.Equal(t, " que pasa quien sos", applyRule(t, RuleQ, "q pasa kien sos"))
}

func TestLaughter_CollapsesRuns(t *testing.T) {
	// the doubled "aa" and "jj" split the input into short ja runs, so the
	// literal patterns leave "jajjajaj" here and never reach "jaja"
	assert.Equal(t, "jajjajaj", applyRule(t, RuleLaughter, "jaajjajjajaj"))
}

func TestLaughter_OrderMatters(t *testing.T) {
	input := "jejeejajajaj"

	forward, err := CollapseLaughter(input, LaughterPatterns)
	require.NoError(t, err)

	reversed := make([]LaughterPattern, len(LaughterPatterns))
	for i, p := range LaughterPatterns {
		reversed[len(LaughterPatterns)-1-i] = p
	}
	backward, err := CollapseLaughter(input, reversed)
	require.NoError(t, err)

	assert.Equal(t, "jeaj", forward)
	assert.Equal(t, "jeja", backward)
	assert.NotEqual(t, forward, backward)
}

func TestFoldLowercaseDiacritic_Idempotent(t *testing.T) {
	for _, input := range []string{"MI Nómbre", "ÁÉÍÓÚ ñ ü", "ya normal", "Cañón Über"} {
		once := FoldLowercaseDiacritic(input)
		assert.Equal(t, once, FoldLowercaseDiacritic(once), "input %q", input)
	}
	// decomposed input folds the same as composed input
	assert.Equal(t, "cancion", FoldLowercaseDiacritic("cancio\u0301n"))
}

func TestStripPunctuation_PerCharacter(t *testing.T) {
	out, err := StripPunctuation("hola!!! chau", "_")
	require.NoError(t, err)
	assert.Equal(t, "hola___ chau", out)
}

func TestReplacementTemplates(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"", ""},
		{"plain", "plain"},
		{`\1`, "${1}"},
		{`\g<1>x`, "${1}x"},
		{`\g<word>`, "${word}"},
		{`a\\b`, `a\b`},
		{"US$", "US$$"},
		{`\n`, "\n"},
		{`\12`, "${12}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, translateReplacement(tt.in), "template %q", tt.in)
	}

	// a literal dollar in a configured replacement stays literal
	rule := MustRule(RuleDigit)
	out, err := rule.Apply("cuesta 30", "$")
	require.NoError(t, err)
	assert.Equal(t, "cuesta $", out)
}

func TestRegistry(t *testing.T) {
	names := RuleNames()
	assert.Len(t, names, 13)
	assert.IsIncreasing(t, names)

	rule, ok := LookupRule("normalize_white_spaces")
	require.True(t, ok)
	assert.Equal(t, RuleWhitespaces, rule.Name)
	assert.Equal(t, []string{"normalize_white_spaces"}, RuleAliases(RuleWhitespaces))

	_, ok = LookupRule("normalize_emoji")
	assert.False(t, ok)

	assert.Panics(t, func() { MustRule("normalize_emoji") })
}
