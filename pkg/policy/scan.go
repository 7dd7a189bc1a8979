package policy

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Hit is a classified line.
type Hit struct {
	Line      int        `json:"line" yaml:"line"`
	Text      string     `json:"text" yaml:"text"`
	Kinds     []Kind     `json:"kinds" yaml:"kinds"`
	Endpoints []Endpoint `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
}

const maxLineBytes = 1 << 20

// Scan classifies every line read from r and returns the lines that fall
// into at least one category. Line numbers start at 1.
func (s *Set) Scan(ctx context.Context, r io.Reader) ([]Hit, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var hits []Hit
	for n := 1; sc.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return hits, err
		}
		line := sc.Text()
		kinds := s.Classify(line)
		if len(kinds) == 0 {
			continue
		}
		hits = append(hits, Hit{
			Line:      n,
			Text:      strings.TrimSpace(line),
			Kinds:     kinds,
			Endpoints: s.Endpoints(line),
		})
	}
	return hits, sc.Err()
}
