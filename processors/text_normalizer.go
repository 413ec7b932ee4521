package processors

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule 一条文本修复规则；Func 非空时优先于 Replace
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Replace string
	Func    func(match string) string
}

// Apply 对文本执行一次替换
func (r Rule) Apply(s string) string {
	if r.Func != nil {
		return r.Pattern.ReplaceAllStringFunc(s, r.Func)
	}
	return r.Pattern.ReplaceAllString(s, r.Replace)
}

// NewRule 正则替换规则
func NewRule(name, pattern, replace string) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern), Replace: replace}
}

// NewFuncRule 函数替换规则
func NewFuncRule(name, pattern string, fn func(string) string) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern), Func: fn}
}

// WordRepair 被分词器切碎的单词
type WordRepair struct {
	Split  string
	Merged string
}

// WordRepairs 常见的过度切分；只收录合并后不可能是正常短语的片段
var WordRepairs = []WordRepair{
	{"Ass ess ment", "Assessment"},
	{"Assess ment", "Assessment"},
	{"Ass essment", "Assessment"},
	{"tech nique", "technique"},
	{"techn ique", "technique"},
	{"tech niques", "techniques"},
	{"Str engths", "Strengths"},
	{"Streng ths", "Strengths"},
	{"Strength s", "Strengths"},
	{"weak nesses", "weaknesses"},
	{"improve ment", "improvement"},
	{"improve ments", "improvements"},
	{"im provement", "improvement"},
	{"im provements", "improvements"},
	{"recommend ation", "recommendation"},
	{"recommend ations", "recommendations"},
	{"snow board", "snowboard"},
	{"snow boarding", "snowboarding"},
	{"snow boarder", "snowboarder"},
	{"snowboard ing", "snowboarding"},
	{"snowboard er", "snowboarder"},
	{"rot ation", "rotation"},
	{"rot ational", "rotational"},
	{"counter rotation", "counter-rotation"},
	{"bal ance", "balance"},
	{"bal anced", "balanced"},
	{"pos ture", "posture"},
	{"align ment", "alignment"},
	{"al ignment", "alignment"},
	{"shoul ders", "shoulders"},
	{"shoul der", "shoulder"},
	{"stab ility", "stability"},
	{"flex ibility", "flexibility"},
	{"consist ency", "consistency"},
	{"consist ent", "consistent"},
	{"dist ribution", "distribution"},
	{"exer cise", "exercise"},
	{"exer cises", "exercises"},
	{"dri lls", "drills"},
	{"carv ing", "carving"},
	{"edg ing", "edging"},
	{"heel side", "heelside"},
	{"toe side", "toeside"},
	{"Pro gression", "Progression"},
	{"eng agement", "engagement"},
}

// DefaultRules 默认规则：先修复单词切分，再整理空白与标点
func DefaultRules() []Rule {
	rules := make([]Rule, 0, len(WordRepairs)+10)
	for _, wr := range WordRepairs {
		rules = append(rules, wordRepairRule(wr))
	}
	rules = append(rules, TidyRules()...)
	return rules
}

// TidyRules 空白与标点整理规则
func TidyRules() []Rule {
	return []Rule{
		NewRule("crlf", `\r\n`, "\n"),
		NewRule("collapse-spaces", `[ \t]+`, " "),
		NewRule("trim-line-start", `\n[ \t]+`, "\n"),
		NewRule("trim-line-end", `[ \t]+\n`, "\n"),
		NewRule("space-before-punct", ` +([,.:;!?)])`, "$1"),
		NewRule("space-after-paren", `\( +`, "("),
		NewRule("space-around-slash", ` */ *`, "/"),
		NewFuncRule("merge-bold-markers", `\*(?: +\*)+`, func(m string) string {
			return strings.ReplaceAll(m, " ", "")
		}),
		NewRule("join-hyphenation", `(\w) +- +(\w)`, "$1-$2"),
		NewRule("join-trailing-hyphen", `(\w)- +(\w)`, "$1-$2"),
		NewRule("space-after-separator", `([,;:])([A-Za-z])`, "$1 $2"),
	}
}

func wordRepairRule(wr WordRepair) Rule {
	parts := strings.Fields(wr.Split)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	pattern := `(?i)\b` + strings.Join(parts, `[ \t]+`) + `\b`
	merged := wr.Merged
	return NewFuncRule("repair:"+strings.ToLower(merged), pattern, func(m string) string {
		joined := strings.Join(strings.Fields(m), "")
		if strings.EqualFold(joined, merged) {
			return joined
		}
		return matchLeadingCase(merged, m)
	})
}

// matchLeadingCase 按原文首字母大小写调整替换词
func matchLeadingCase(word, original string) string {
	r, _ := utf8.DecodeRuneInString(original)
	w, size := utf8.DecodeRuneInString(word)
	if size == 0 {
		return word
	}
	if unicode.IsUpper(r) {
		return string(unicode.ToUpper(w)) + word[size:]
	}
	return string(unicode.ToLower(w)) + word[size:]
}

const maxNormalizePasses = 32

// Normalizer 生成文本修复器
type Normalizer struct {
	rules []Rule
}

// NewNormalizer 不传规则时使用 DefaultRules
func NewNormalizer(rules ...Rule) *Normalizer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Normalizer{rules: rules}
}

// Rules 当前规则副本
func (n *Normalizer) Rules() []Rule {
	out := make([]Rule, len(n.rules))
	copy(out, n.rules)
	return out
}

// Normalize 重复应用规则直到不再变化，结果幂等
func (n *Normalizer) Normalize(text string) string {
	cur := strings.TrimSpace(text)
	for pass := 0; pass < maxNormalizePasses; pass++ {
		next := cur
		for _, r := range n.rules {
			next = r.Apply(next)
		}
		next = strings.TrimSpace(next)
		if next == cur {
			break
		}
		cur = next
	}
	return cur
}

var defaultNormalizer = NewNormalizer()

// Normalize 使用默认规则
func Normalize(text string) string {
	return defaultNormalizer.Normalize(text)
}
