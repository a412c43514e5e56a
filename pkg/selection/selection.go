// Package selection parses episode selections like "all", "3", "1-5,8" or "12-".
package selection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"
)

type expression struct {
	All   string  `  @"all"`
	Items []*item `| @@ { "," @@ }`
}

type item struct {
	From string `@Number`
	Dash string `[ @"-"`
	To   string `  [ @Number ] ]`
}

// Spaces are dropped, words are only there to catch "all"
const selectionLexer = `(\s+)|(?P<Ident>[a-z]+)|(?P<Number>\d+)|(?P<Punct>[-,])`

var parser = participle.MustBuild(
	&expression{},
	participle.Lexer(lexer.Must(lexer.Regexp(selectionLexer))),
	participle.UseLookahead(2),
)

// Range of episodes, bounds included. To is 0 for an open range.
type Range struct {
	From int
	To   int
}

func (r Range) Contains(n int) bool {
	return n >= r.From && (r.To == 0 || n <= r.To)
}

func (r Range) String() string {
	switch {
	case r.To == 0:
		return strconv.Itoa(r.From) + "-"
	case r.To == r.From:
		return strconv.Itoa(r.From)
	}
	return strconv.Itoa(r.From) + "-" + strconv.Itoa(r.To)
}

// Selection of episode numbers
type Selection struct {
	all    bool
	ranges []Range
}

// All selects every episode
func All() *Selection { return &Selection{all: true} }

// Parse reads a selection. An empty string selects all episodes.
func Parse(s string) (*Selection, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return All(), nil
	}
	e := &expression{}
	if err := parser.ParseString(s, e); err != nil {
		return nil, fmt.Errorf("invalid episode selection %q: %w", s, err)
	}
	if e.All != "" {
		return All(), nil
	}

	sel := &Selection{}
	for _, it := range e.Items {
		r := Range{}
		r.From, _ = strconv.Atoi(it.From)
		switch {
		case it.Dash == "":
			r.To = r.From
		case it.To != "":
			r.To, _ = strconv.Atoi(it.To)
		}
		if r.To != 0 && r.To < r.From {
			return nil, fmt.Errorf("invalid episode selection %q: range %d-%d is reversed", s, r.From, r.To)
		}
		sel.ranges = append(sel.ranges, r)
	}
	return sel, nil
}

// IsAll tells if every episode is selected
func (s *Selection) IsAll() bool { return s.all }

// Contains tells if the episode n is selected
func (s *Selection) Contains(n int) bool {
	if s.all {
		return true
	}
	for _, r := range s.ranges {
		if r.Contains(n) {
			return true
		}
	}
	return false
}

func (s *Selection) String() string {
	if s.all {
		return "all"
	}
	parts := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}
