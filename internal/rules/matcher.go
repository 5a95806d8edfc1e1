package rules

// Matcher selects the first rule, in declaration order, that applies to a path.
type Matcher struct {
	rules []*Rule
}

// NewMatcher creates a Matcher over an already validated rule list.
func NewMatcher(rules []*Rule) *Matcher {
	return &Matcher{rules: rules}
}

// Match returns the winning rule for modulePath. A false result means the
// module passes through unmodified.
func (m *Matcher) Match(modulePath string) (*Rule, bool) {
	for _, r := range m.rules {
		if r.Applies(modulePath) {
			return r, true
		}
	}
	return nil, false
}

// Rules returns the configured rules in declaration order.
func (m *Matcher) Rules() []*Rule {
	return m.rules
}
