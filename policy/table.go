package policy

import (
	"errors"
	"fmt"
	"path"

	"github.com/dghubble/trie"
	"github.com/mpraski/admission/ratelimit"
	"github.com/mpraski/admission/store"
)

type (
	Rule struct {
		Prefix    string
		Algorithm ratelimit.Algorithm
		Params    ratelimit.Params
	}

	// Table maps key prefixes, split on '/', to rules. The longest matching
	// prefix wins.
	Table struct {
		t        *trie.PathTrie
		fallback *Rule
		size     int
	}
)

var (
	ErrNoPolicy        = errors.New("no rate limit policy for key")
	ErrDuplicatePrefix = errors.New("prefix is already mapped")
	ErrNoAlgorithm     = errors.New("rule has no algorithm")
)

func NewTable(c Config) (*Table, error) {
	t := &Table{t: trie.NewPathTrie()}

	if c.Default != nil {
		r, err := resolve(nil, c.Default)
		if err != nil {
			return nil, fmt.Errorf("default rule is invalid: %w", err)
		}

		r.Prefix = "/"
		t.fallback = &r
	}

	if err := t.add("/", nil, c.Rules); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Table) add(p string, parent *Rule, rules []RuleConfig) error {
	for i := range rules {
		if rules[i].Prefix == "" {
			continue
		}

		r, err := resolve(parent, &rules[i])
		if err != nil {
			return fmt.Errorf("rule %q is invalid: %w", rules[i].Prefix, err)
		}

		r.Prefix = path.Join(p, rules[i].Prefix)

		if r.Prefix == "/" {
			if t.fallback != nil {
				return fmt.Errorf("rule %q: %w", r.Prefix, ErrDuplicatePrefix)
			}

			t.fallback = &r
		} else if !t.t.Put(r.Prefix, &r) {
			return fmt.Errorf("rule %q: %w", r.Prefix, ErrDuplicatePrefix)
		} else {
			t.size++
		}

		if err := t.add(r.Prefix, &r, rules[i].Rules); err != nil {
			return err
		}
	}

	return nil
}

func resolve(parent *Rule, c *RuleConfig) (Rule, error) {
	var r Rule
	if parent != nil {
		r = *parent
	}

	if c.Algorithm != nil {
		a, err := ratelimit.ParseAlgorithm(*c.Algorithm)
		if err != nil {
			return Rule{}, err
		}

		r.Algorithm = a
	}

	if c.Limit != nil {
		r.Params.Limit = *c.Limit
	}

	if c.Window != nil {
		r.Params.Window = store.FromDuration(*c.Window)
	}

	if c.Mode != nil {
		m, err := ratelimit.ParseMode(*c.Mode)
		if err != nil {
			return Rule{}, err
		}

		r.Params.Mode = m
	}

	if r.Algorithm == "" {
		return Rule{}, ErrNoAlgorithm
	}

	if err := ratelimit.Validate(r.Algorithm, r.Params); err != nil {
		return Rule{}, err
	}

	return r, nil
}

// Match returns the rule with the longest prefix of key, or the default rule.
func (t *Table) Match(key string) (Rule, bool) {
	var found *Rule

	_ = t.t.WalkPath(path.Join("/", key), func(_ string, value interface{}) error {
		//nolint:errcheck //always known
		found = value.(*Rule)

		return nil
	})

	if found != nil {
		return *found, true
	}

	if t.fallback != nil {
		return *t.fallback, true
	}

	return Rule{}, false
}

// Len returns the number of prefixed rules, the default excluded.
func (t *Table) Len() int {
	return t.size
}
