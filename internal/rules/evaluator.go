package rules

import (
	"strings"

	"github.com/nalabelle/miniflux-filter/internal/miniflux"
)

// Match evaluates the rule set against an entry and returns the index of the
// first matching rule. Rules are tried in file order; evaluation stops at the
// first match. Disabled rule sets and disabled rules never match.
func (rs *RuleSet) Match(entry *miniflux.Entry) (int, bool) {
	if !rs.IsEnabled() {
		return 0, false
	}

	for i := range rs.Rules {
		rule := &rs.Rules[i]
		if rule.disabled {
			continue
		}
		if matchRule(rule, entry) {
			return i, true
		}
	}

	return 0, false
}

// matchRule holds when every condition holds. Condition order is irrelevant.
func matchRule(rule *Rule, entry *miniflux.Entry) bool {
	for i := range rule.Conditions {
		if !MatchCondition(&rule.Conditions[i], entry) {
			return false
		}
	}
	return true
}

// MatchCondition evaluates a single condition against an entry. It is pure:
// no side effects, no I/O. String operators compare case-insensitively;
// matches runs the pre-compiled regex against the raw field value.
func MatchCondition(condition *Condition, entry *miniflux.Entry) bool {
	if condition.Field == FieldTag {
		return matchTags(condition, entry.Tags)
	}

	var value string
	switch condition.Field {
	case FieldTitle:
		value = entry.Title
	case FieldContent:
		value = entry.Content
	case FieldAuthor:
		value = entry.Author
	case FieldURL:
		value = entry.URL
	default:
		return false
	}

	return matchValue(condition, value)
}

func matchValue(condition *Condition, value string) bool {
	switch condition.Operator {
	case OpContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(condition.Value))
	case OpNotContains:
		return !strings.Contains(strings.ToLower(value), strings.ToLower(condition.Value))
	case OpEquals:
		return strings.EqualFold(value, condition.Value)
	case OpNotEquals:
		return !strings.EqualFold(value, condition.Value)
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(value), strings.ToLower(condition.Value))
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(value), strings.ToLower(condition.Value))
	case OpMatches:
		if condition.pattern == nil {
			return false
		}
		return condition.pattern.MatchString(value)
	default:
		return false
	}
}

// matchTags applies set semantics: a positive operator holds when any tag
// satisfies it, a negative operator holds only when no tag satisfies its
// positive counterpart.
func matchTags(condition *Condition, tags []string) bool {
	switch condition.Operator {
	case OpNotContains:
		return !anyTag(tags, func(tag string) bool {
			return strings.Contains(strings.ToLower(tag), strings.ToLower(condition.Value))
		})
	case OpNotEquals:
		return !anyTag(tags, func(tag string) bool {
			return strings.EqualFold(tag, condition.Value)
		})
	default:
		positive := *condition
		switch condition.Operator {
		case OpContains, OpEquals, OpStartsWith, OpEndsWith, OpMatches:
		default:
			return false
		}
		return anyTag(tags, func(tag string) bool {
			return matchValue(&positive, tag)
		})
	}
}

func anyTag(tags []string, fn func(string) bool) bool {
	for _, tag := range tags {
		if fn(tag) {
			return true
		}
	}
	return false
}
