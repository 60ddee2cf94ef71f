package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Field names the entry attribute a condition inspects.
type Field string

const (
	FieldTitle   Field = "title"
	FieldContent Field = "content"
	FieldAuthor  Field = "author"
	FieldURL     Field = "url"
	FieldTag     Field = "tag"
)

// Operator is the comparison applied to the extracted field value.
type Operator string

const (
	OpContains    Operator = "contains"
	OpNotContains Operator = "notcontains"
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notequals"
	OpStartsWith  Operator = "startswith"
	OpEndsWith    Operator = "endswith"
	OpMatches     Operator = "matches"
)

// Action is what happens to a matching entry. Only markread exists today.
type Action string

const (
	ActionMarkRead Action = "markread"
)

func (f *Field) UnmarshalText(text []byte) error {
	v := Field(strings.ToLower(string(text)))
	switch v {
	case FieldTitle, FieldContent, FieldAuthor, FieldURL, FieldTag:
		*f = v
		return nil
	}
	return fmt.Errorf("unknown field %q", string(text))
}

func (f Field) MarshalText() ([]byte, error) {
	return []byte(f), nil
}

func (o *Operator) UnmarshalText(text []byte) error {
	v := Operator(strings.ToLower(string(text)))
	switch v {
	case OpContains, OpNotContains, OpEquals, OpNotEquals, OpStartsWith, OpEndsWith, OpMatches:
		*o = v
		return nil
	}
	return fmt.Errorf("unknown operator %q", string(text))
}

func (o Operator) MarshalText() ([]byte, error) {
	return []byte(o), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	v := Action(strings.ToLower(string(text)))
	if v != ActionMarkRead {
		return fmt.Errorf("unknown action %q", string(text))
	}
	*a = v
	return nil
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a), nil
}

// Condition is a single field/operator/value test. For the matches operator
// the pattern is compiled once and cached on the condition.
type Condition struct {
	Field    Field    `toml:"field" json:"field"`
	Operator Operator `toml:"operator" json:"operator"`
	Value    string   `toml:"value" json:"value"`

	pattern *regexp.Regexp
}

// Rule is an AND-group of conditions paired with an action. A rule with an
// uncompilable regex is disabled rather than failing the whole rule set.
type Rule struct {
	Action     Action      `toml:"action" json:"action"`
	Conditions []Condition `toml:"conditions" json:"conditions"`

	disabled bool
}

// RuleSet holds the ordered filtering rules for one feed.
type RuleSet struct {
	FeedID   int64  `toml:"feed_id" json:"feed_id"`
	FeedName string `toml:"feed_name,omitempty" json:"feed_name,omitempty"`
	Enabled  *bool  `toml:"enabled,omitempty" json:"enabled,omitempty"`
	Rules    []Rule `toml:"rules" json:"rules"`
}

// clone returns a deep copy whose rules and conditions do not alias the
// receiver, so compiling or caching the copy never touches caller-owned
// memory.
func (rs *RuleSet) clone() *RuleSet {
	out := *rs
	if rs.Enabled != nil {
		enabled := *rs.Enabled
		out.Enabled = &enabled
	}
	out.Rules = make([]Rule, len(rs.Rules))
	for i, rule := range rs.Rules {
		copied := rule
		copied.Conditions = append([]Condition(nil), rule.Conditions...)
		out.Rules[i] = copied
	}
	return &out
}

// IsEnabled treats an absent enabled flag as true.
func (rs *RuleSet) IsEnabled() bool {
	return rs.Enabled == nil || *rs.Enabled
}

// ValidateStructure checks everything except regex compilation: a positive
// feed id, non-empty condition lists, and non-blank condition values.
func (rs *RuleSet) ValidateStructure() error {
	if rs.FeedID <= 0 {
		return fmt.Errorf("feed_id must be positive")
	}

	for i, rule := range rs.Rules {
		if len(rule.Conditions) == 0 {
			return fmt.Errorf("rule %d has no conditions", i+1)
		}
		for j, condition := range rule.Conditions {
			if strings.TrimSpace(condition.Value) == "" {
				return fmt.Errorf("rule %d condition %d has an empty value", i+1, j+1)
			}
		}
	}

	return nil
}

// Validate performs the strict check used for API writes: structural checks
// plus regex compilation, so a bad pattern is rejected before it reaches disk.
func (rs *RuleSet) Validate() error {
	if err := rs.ValidateStructure(); err != nil {
		return err
	}

	for i, rule := range rs.Rules {
		for j, condition := range rule.Conditions {
			if condition.Operator != OpMatches {
				continue
			}
			if _, err := regexp.Compile(condition.Value); err != nil {
				return fmt.Errorf("invalid regex in rule %d condition %d: %w", i+1, j+1, err)
			}
		}
	}

	return nil
}

// Compile pre-compiles all matches patterns. A rule containing an
// uncompilable pattern is disabled for evaluation; one error per disabled
// rule is returned for logging.
func (rs *RuleSet) Compile() []error {
	var errs []error

	for i := range rs.Rules {
		rule := &rs.Rules[i]
		rule.disabled = false
		for j := range rule.Conditions {
			condition := &rule.Conditions[j]
			if condition.Operator != OpMatches {
				continue
			}
			re, err := regexp.Compile(condition.Value)
			if err != nil {
				rule.disabled = true
				errs = append(errs, fmt.Errorf("rule %d disabled, invalid regex %q: %w", i+1, condition.Value, err))
				continue
			}
			condition.pattern = re
		}
	}

	return errs
}

// RuleCount returns the number of rules, disabled ones included.
func (rs *RuleSet) RuleCount() int {
	return len(rs.Rules)
}

// Stats summarizes the store contents, derived on demand.
type Stats struct {
	TotalRuleSets   int     `json:"total_rule_sets"`
	EnabledRuleSets int     `json:"enabled_rule_sets"`
	TotalRules      int     `json:"total_rules"`
	FeedsWithRules  []int64 `json:"feeds_with_rules"`
}
