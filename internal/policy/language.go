package policy

import (
	"regexp"
	"strings"
)

type languageRule struct {
	language string
	pattern  *regexp.Regexp
}

var languageRules = []languageRule{
	rule("javascript", "react", "javascript", "node", "nodejs", "vue", "angular", "js", "jsx"),
	rule("typescript", "typescript", "ts", "tsx"),
	rule("python", "python", "django", "flask", "fastapi", "pytorch", "tensorflow", "ml", "machine learning", "data science"),
	rule("html", "html", "css", "tailwind", "bootstrap"),
	rule("java", "java", "spring", "android"),
	rule("cpp", "c++", "cpp"),
	rule("csharp", "c#", "c sharp", "csharp"),
	rule("go", "go", "golang"),
	rule("rust", "rust"),
	rule("sql", "sql", "database", "databases", "postgres", "postgresql", "mysql"),
	rule("bash", "bash", "shell"),
}

// rule matches keywords on word boundaries so "ml" does not fire inside "html".
func rule(language string, keywords ...string) languageRule {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return languageRule{
		language: language,
		pattern:  regexp.MustCompile(`(?:^|[^a-z0-9+#])(?:` + strings.Join(quoted, "|") + `)(?:$|[^a-z0-9+#])`),
	}
}

// DetectLanguage guesses the programming language a topic is about, or "auto".
func DetectLanguage(topic string) string {
	t := strings.ToLower(strings.TrimSpace(topic))
	if t == "" {
		return "auto"
	}
	for _, r := range languageRules {
		if r.pattern.MatchString(t) {
			return r.language
		}
	}
	return "auto"
}
