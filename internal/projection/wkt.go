// Package projection exports OGC WKT coordinate reference systems as PROJ
// strings for mapfile PROJECTION blocks.
package projection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnsupported = errors.New("projection: unsupported WKT")

// Exporter converts a WKT definition into a PROJ string.
type Exporter interface {
	ToProj4(wkt string) (string, error)
}

// node is one KEYWORD[arg, ...] element of a WKT tree. Quoted arguments are
// stored in Values, nested elements in Children.
type node struct {
	Keyword  string
	Values   []string
	Children []*node
}

func (n *node) child(kw string) *node {
	for _, c := range n.Children {
		if strings.EqualFold(c.Keyword, kw) {
			return c
		}
	}
	return nil
}

func (n *node) children(kw string) []*node {
	var out []*node
	for _, c := range n.Children {
		if strings.EqualFold(c.Keyword, kw) {
			out = append(out, c)
		}
	}
	return out
}

func (n *node) value(i int) string {
	if n == nil || i >= len(n.Values) {
		return ""
	}
	return n.Values[i]
}

type parser struct {
	s   string
	pos int
}

func parse(wkt string) (*node, error) {
	p := &parser{s: strings.TrimSpace(wkt)}
	n, err := p.element()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("%w: trailing input at %d", ErrUnsupported, p.pos)
	}
	return n, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\n' || p.s[p.pos] == '\t' || p.s[p.pos] == '\r') {
		p.pos++
	}
}

func (p *parser) element() (*node, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) && (isAlnum(p.s[p.pos]) || p.s[p.pos] == '_') {
		p.pos++
	}
	if start == p.pos {
		return nil, fmt.Errorf("%w: expected keyword at %d", ErrUnsupported, p.pos)
	}
	n := &node{Keyword: strings.ToUpper(p.s[start:p.pos])}
	p.skipSpace()
	if p.pos >= len(p.s) || (p.s[p.pos] != '[' && p.s[p.pos] != '(') {
		return n, nil
	}
	closer := byte(']')
	if p.s[p.pos] == '(' {
		closer = ')'
	}
	p.pos++
	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			return nil, fmt.Errorf("%w: unterminated %s", ErrUnsupported, n.Keyword)
		}
		switch c := p.s[p.pos]; {
		case c == '"':
			end := strings.IndexByte(p.s[p.pos+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string", ErrUnsupported)
			}
			n.Values = append(n.Values, p.s[p.pos+1:p.pos+1+end])
			p.pos += end + 2
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			start := p.pos
			for p.pos < len(p.s) && strings.IndexByte("+-.eE0123456789", p.s[p.pos]) >= 0 {
				p.pos++
			}
			n.Values = append(n.Values, p.s[start:p.pos])
		case isAlnum(c):
			child, err := p.element()
			if err != nil {
				return nil, err
			}
			if len(child.Values) == 0 && len(child.Children) == 0 {
				// bare enum value, e.g. AXIS["X",EAST]
				n.Values = append(n.Values, child.Keyword)
			} else {
				n.Children = append(n.Children, child)
			}
		default:
			return nil, fmt.Errorf("%w: unexpected %q at %d", ErrUnsupported, c, p.pos)
		}
		p.skipSpace()
		if p.pos >= len(p.s) {
			return nil, fmt.Errorf("%w: unterminated %s", ErrUnsupported, n.Keyword)
		}
		if p.s[p.pos] == ',' {
			p.pos++
			continue
		}
		if p.s[p.pos] == closer {
			p.pos++
			return n, nil
		}
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrUnsupported, p.s[p.pos], p.pos)
	}
}

func isAlnum(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// Authority returns the root AUTHORITY of wkt, e.g. ("EPSG", 4326).
func Authority(wkt string) (name string, code int, ok bool) {
	root, err := parse(wkt)
	if err != nil {
		return "", 0, false
	}
	a := root.child("AUTHORITY")
	if a == nil {
		return "", 0, false
	}
	code, err = strconv.Atoi(strings.TrimSpace(a.value(1)))
	if err != nil {
		return "", 0, false
	}
	return a.value(0), code, true
}
