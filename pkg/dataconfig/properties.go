// Package dataconfig reads and writes trainer data configuration files.
//
// The format is line oriented:
//
//	# comment
//	classes = 20
//	train   = data/train.txt
//	names   = "data/voc.names"
//
// Blank lines and lines starting with '#' are ignored. Everything before the
// first '=' is the key, everything after it is the value. Surrounding
// whitespace and double quotes are stripped from values.
package dataconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	separator     = "="
	commentPrefix = "#"
)

// Properties is a flat key/value map that remembers the order keys were first
// seen so rewritten files are stable between runs.
type Properties struct {
	keys   []string
	values map[string]string
}

// New returns an empty property map.
func New() *Properties {
	return &Properties{values: make(map[string]string)}
}

// Get returns the value for key and whether it was present.
func (p *Properties) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Set stores value under key. Existing keys keep their position.
func (p *Properties) Set(key, value string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Has reports whether key is present.
func (p *Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Keys returns the keys in first-seen order.
func (p *Properties) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of entries.
func (p *Properties) Len() int {
	return len(p.keys)
}

// Map returns a copy of the entries as a plain map.
func (p *Properties) Map() map[string]string {
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Parse reads properties from r.
func Parse(r io.Reader) (*Properties, error) {
	props := New()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		key, value, _ := strings.Cut(line, separator)
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		props.Set(key, value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan data config: %w", err)
	}
	return props, nil
}

// ParseFile reads properties from the file at path.
func ParseFile(path string) (*Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data config: %w", err)
	}
	defer func() { _ = f.Close() }()

	props, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return props, nil
}

// WriteTo writes one "key = value" line per entry.
func (p *Properties) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, k := range p.keys {
		c, err := fmt.Fprintf(bw, "%s %s %s\n", k, separator, p.values[k])
		n += int64(c)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// WriteFile replaces the file at path with the serialized properties.
func (p *Properties) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create data config: %w", err)
	}
	if _, err := p.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write data config: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close data config: %w", err)
	}
	return nil
}

// String renders the properties in file format.
func (p *Properties) String() string {
	var sb strings.Builder
	_, _ = p.WriteTo(&sb)
	return sb.String()
}
