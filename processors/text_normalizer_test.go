package processors

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"split word", "Ass ess ment: your tech nique is solid .", "Assessment: your technique is solid."},
		{"keeps upper case", "ASS ESS MENT", "ASSESSMENT"},
		{"merged differs from split", "Counter rotation in the upper body", "Counter-rotation in the upper body"},
		{"punctuation spacing", "Knees  bent ,weight centered .", "Knees bent, weight centered."},
		{"line whitespace", "Line one   \n    - Keep knees bent\n\n  Next", "Line one\n- Keep knees bent\n\nNext"},
		{"parentheses", "Shift weight ( front foot ) early", "Shift weight (front foot) early"},
		{"slash", "heel / toe edge", "heel/toe edge"},
		{"bold markers", "* *Key Strengths* *", "**Key Strengths**"},
		{"spaced hyphen", "a well - balanced stance", "a well-balanced stance"},
		{"trailing hyphen", "a well- balanced stance", "a well-balanced stance"},
		{"space after colon", "Note:keep your knees bent", "Note: keep your knees bent"},
		{"crlf", "first\r\nsecond", "first\nsecond"},
		{"trims", "   padded   ", "padded"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestWordRepairsMerge(t *testing.T) {
	for _, wr := range WordRepairs {
		assert.Equal(t, wr.Merged, Normalize(wr.Split), "repair %q", wr.Split)
	}
}

func TestNormalizeLeavesRealPhrasesAlone(t *testing.T) {
	in := "Keep control over all phases of the turn and ride into the flats."
	assert.Equal(t, in, Normalize(in))
}

func TestNormalizeIdempotent(t *testing.T) {
	samples := []string{
		"Ass ess ment : * *Str engths* * - you keep a well - balanced stance ( mostly ) .",
		"a - b - c - d - e - f - g - h",
		"\r \n  x ,y ;z :w",
		"* * * *",
		"**Frame 1 (initiation):** knees bent.\n\n**Frame 5 (execution):** good edge",
	}
	for _, s := range samples {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "input %q", s)
	}

	prop := func(s string) bool {
		once := Normalize(s)
		return Normalize(once) == once
	}
	assert.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 500}))
}

func TestCustomRules(t *testing.T) {
	n := NewNormalizer(NewRule("swap", `foo`, "bar"))
	assert.Equal(t, "bar bar", n.Normalize("  foo foo "))
	assert.Len(t, n.Rules(), 1)
}

func TestDefaultRulesNamed(t *testing.T) {
	rules := DefaultRules()
	assert.Len(t, rules, len(WordRepairs)+len(TidyRules()))
	for _, r := range rules {
		assert.NotEmpty(t, r.Name)
		assert.NotNil(t, r.Pattern)
	}
}
