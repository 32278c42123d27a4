package cleanup

import (
	"fmt"
	"strings"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
)

// Matcher decides whether a resource belongs to the validation scaffolding.
type Matcher interface {
	Match(name string, tags map[string]string) bool
	// NeedsTags reports whether Match looks at tags, so callers can skip the
	// per-resource tag lookups when it does not.
	NeedsTags() bool
	String() string
}

func NewMatcher(conf *config.Config) Matcher {
	protected := conf.ProtectedStacks()
	if conf.Cleanup.MatchMode == config.MatchModeName {
		return &NameMatcher{Patterns: conf.CleanupPatterns(), Protected: protected}
	}
	return &TagMatcher{Key: common.TagPurpose, Value: common.PurposeValidation, Protected: protected}
}

func isProtected(name string, protected []string) bool {
	for _, p := range protected {
		if p != "" && p == name {
			return true
		}
	}
	return false
}

// TagMatcher matches resources carrying Key=Value exactly.
type TagMatcher struct {
	Key       string
	Value     string
	Protected []string
}

func (m *TagMatcher) Match(name string, tags map[string]string) bool {
	if isProtected(name, m.Protected) {
		return false
	}
	v, ok := tags[m.Key]
	return ok && v == m.Value
}

func (m *TagMatcher) NeedsTags() bool {
	return true
}

func (m *TagMatcher) String() string {
	return fmt.Sprintf("tag %v=%v", m.Key, m.Value)
}

// NameMatcher matches resources whose name contains one of Patterns,
// ignoring case.
type NameMatcher struct {
	Patterns  []string
	Protected []string
}

func (m *NameMatcher) Match(name string, _ map[string]string) bool {
	if isProtected(name, m.Protected) {
		return false
	}
	lower := strings.ToLower(name)
	for _, p := range m.Patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (m *NameMatcher) NeedsTags() bool {
	return false
}

func (m *NameMatcher) String() string {
	return fmt.Sprintf("name patterns %v", strings.Join(m.Patterns, ", "))
}
