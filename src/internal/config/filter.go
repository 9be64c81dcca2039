// FILE: logship/src/internal/config/filter.go
package config

// Filter rule types
const (
	FilterTypeInclude = "include"
	FilterTypeExclude = "exclude"
)

// Pattern combination logic
const (
	FilterLogicOr  = "or"
	FilterLogicAnd = "and"
)

// FilterConfig decides which records are shipped at all.
type FilterConfig struct {
	// Records below this level are discarded: "debug", "info", "notice", "warn", "error", "critical"
	MinLevel string `toml:"min_level"`

	// Regex rules, all must pass
	Rules []FilterRule `toml:"rules"`
}

// FilterRule matches its patterns against "<severity> <message>".
type FilterRule struct {
	Type     string   `toml:"type"`  // "include" or "exclude"
	Logic    string   `toml:"logic"` // "or" or "and"
	Patterns []string `toml:"patterns"`
}
