package nginx

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokSemicolon
	tokOpen
	tokClose
)

type token struct {
	kind tokenKind
	text string
	line int
}

// tokenize splits nginx configuration text into words, ';', '{' and '}'.
// Quotes group words and are removed; '#' starts a comment outside quotes.
func tokenize(text string) ([]token, error) {
	var (
		toks []token
		word strings.Builder
		line = 1
		// inWord is set once a word has started, so "" yields an empty word.
		inWord bool
	)
	flush := func() {
		if inWord {
			toks = append(toks, token{kind: tokWord, text: word.String(), line: line})
			word.Reset()
			inWord = false
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\n':
			flush()
			line++
		case c == ' ' || c == '\t' || c == '\r':
			flush()
		case c == '#' && !inWord:
			for i < len(text) && text[i] != '\n' {
				i++
			}
			i--
		case c == ';':
			flush()
			toks = append(toks, token{kind: tokSemicolon, text: ";", line: line})
		case c == '{':
			flush()
			toks = append(toks, token{kind: tokOpen, text: "{", line: line})
		case c == '}':
			flush()
			toks = append(toks, token{kind: tokClose, text: "}", line: line})
		case c == '"' || c == '\'':
			start := line
			inWord = true
			i++
			for ; i < len(text) && text[i] != c; i++ {
				if text[i] == '\\' && i+1 < len(text) && text[i+1] == c {
					i++
				}
				if text[i] == '\n' {
					line++
				}
				word.WriteByte(text[i])
			}
			if i >= len(text) {
				return nil, fmt.Errorf("line %d: unterminated quote", start)
			}
		case c == '\\' && i+1 < len(text):
			// Escapes stay in place; regex locations depend on them.
			inWord = true
			word.WriteByte(c)
			i++
			word.WriteByte(text[i])
		default:
			inWord = true
			word.WriteByte(c)
		}
	}
	flush()
	return toks, nil
}

// Directive is one simple or block directive.
type Directive struct {
	Name  string       `json:"name" yaml:"name"`
	Args  []string     `json:"args,omitempty" yaml:"args,omitempty"`
	Block []*Directive `json:"block,omitempty" yaml:"block,omitempty"`
	File  string       `json:"-" yaml:"-"`
	Line  int          `json:"-" yaml:"-"`
}

// IsBlock reports whether d opened a { } block.
func (d *Directive) IsBlock() bool {
	return d.Block != nil
}

// Value joins the arguments with single spaces.
func (d *Directive) Value() string {
	return strings.Join(d.Args, " ")
}

// parse builds the directive tree of one file.
func parse(file, text string) ([]*Directive, error) {
	toks, err := tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	p := &treeParser{file: file, toks: toks}
	dirs, err := p.block(false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return dirs, nil
}

type treeParser struct {
	file string
	toks []token
	pos  int
}

func (p *treeParser) block(nested bool) ([]*Directive, error) {
	dirs := []*Directive{}
	var cur *Directive
	for p.pos < len(p.toks) {
		t := p.toks[p.pos]
		p.pos++
		switch t.kind {
		case tokWord:
			if cur == nil {
				cur = &Directive{Name: t.text, File: p.file, Line: t.line}
				continue
			}
			cur.Args = append(cur.Args, t.text)
		case tokSemicolon:
			if cur == nil {
				return nil, fmt.Errorf("line %d: unexpected ';'", t.line)
			}
			dirs = append(dirs, cur)
			cur = nil
		case tokOpen:
			if cur == nil {
				return nil, fmt.Errorf("line %d: block without a name", t.line)
			}
			inner, err := p.block(true)
			if err != nil {
				return nil, err
			}
			cur.Block = inner
			dirs = append(dirs, cur)
			cur = nil
		case tokClose:
			if !nested {
				return nil, fmt.Errorf("line %d: unexpected '}'", t.line)
			}
			if cur != nil {
				return nil, fmt.Errorf("line %d: directive %q is not terminated", cur.Line, cur.Name)
			}
			return dirs, nil
		}
	}
	if cur != nil {
		return nil, fmt.Errorf("line %d: directive %q is not terminated", cur.Line, cur.Name)
	}
	if nested {
		return nil, fmt.Errorf("unexpected end of file, expecting '}'")
	}
	return dirs, nil
}
