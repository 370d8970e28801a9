// Package endpoint manages the set of chat endpoints to harvest and the
// newline-separated list file they are stored in.
package endpoint

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"tg_harvest/internal/model"
)

// ErrEmpty is returned when an identifier is blank after trimming.
var ErrEmpty = errors.New("empty endpoint identifier")

const linkPrefix = "https://t.me/"

// Set is a deduplicated collection of endpoint identifiers.
// Identifiers are trimmed and compared case-sensitively.
type Set struct {
	items map[string]struct{}
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{items: make(map[string]struct{})}
}

// Add normalizes id and inserts it. It reports whether id was new.
func (s *Set) Add(id string) (bool, error) {
	id = Normalize(id)
	if id == "" {
		return false, ErrEmpty
	}
	if _, ok := s.items[id]; ok {
		return false, nil
	}
	s.items[id] = struct{}{}
	return true, nil
}

// Len returns the number of unique identifiers.
func (s *Set) Len() int {
	return len(s.items)
}

// Sorted returns the identifiers in lexicographic order.
func (s *Set) Sorted() []string {
	out := make([]string, 0, len(s.items))
	for id := range s.items {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FromRecords builds a Set from the source_chat values of a corpus.
// Records with a blank source_chat are not included; their indexes are
// returned so the caller can report them.
func FromRecords(records []model.Record) (*Set, []int) {
	s := NewSet()
	var skipped []int
	for i, r := range records {
		if _, err := s.Add(r.SourceChat); err != nil {
			skipped = append(skipped, i)
		}
	}
	return s, skipped
}

// Normalize trims surrounding whitespace.
func Normalize(id string) string {
	return strings.TrimSpace(id)
}

// Handle converts an identifier into the form the remote API resolves:
// t.me links and a leading @ are stripped.
func Handle(id string) string {
	id = strings.TrimPrefix(Normalize(id), linkPrefix)
	return strings.TrimPrefix(id, "@")
}

// ParseList reads a list file. Blank lines and lines starting with # are
// ignored; order is preserved and duplicates are kept.
func ParseList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := Normalize(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan list: %w", err)
	}
	return out, nil
}

// ReadList reads the list file at path.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	ids, err := ParseList(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ids, nil
}

// WriteList writes the sorted identifiers of s to path, one per line.
func WriteList(path string, s *Set) error {
	data := strings.Join(s.Sorted(), "\n")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil { //nolint:gosec // list file is not secret
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
