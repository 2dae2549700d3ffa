// Package frontmatter parses and serializes the minimal key:value header
// block that fences the body of every synced markdown file.
package frontmatter

import (
	"bufio"
	"strings"
)

// fence is the line that opens and closes a front-matter block.
const fence = "---"

// IDKey is the only front-matter key the sync engine gives meaning to.
const IDKey = "id_outline"

// Doc is a parsed front-matter block plus the body that follows it.
type Doc struct {
	// Keys preserves insertion order so unknown keys round-trip in the
	// order a human (or a previous run) wrote them.
	Keys   []string
	Values map[string]string
	Body   string
}

// Get returns the value for key and whether it was present.
func (d *Doc) Get(key string) (string, bool) {
	v, ok := d.Values[key]
	return v, ok
}

// Set adds or overwrites key, appending it to Keys if new.
func (d *Doc) Set(key, value string) {
	if d.Values == nil {
		d.Values = map[string]string{}
	}
	if _, exists := d.Values[key]; !exists {
		d.Keys = append(d.Keys, key)
	}
	d.Values[key] = value
}

// OutlineID is a convenience accessor for the id_outline key.
func (d *Doc) OutlineID() string {
	id, _ := d.Get(IDKey)
	return id
}

// Parse splits content into a front-matter Doc and body. A file lacking a
// fenced block at the very start yields an empty mapping and a body equal
// to the full content, per the contract in spec.md §4.1. A single blank
// line right after the closing fence is dropped, so
// Parse(Serialize(d)).Body equals d.Body.
func Parse(content []byte) *Doc {
	s := string(content)
	if !strings.HasPrefix(s, fence+"\n") {
		return &Doc{Values: map[string]string{}, Body: s}
	}

	rest := s[len(fence)+1:]
	closeIdx := strings.Index(rest, "\n"+fence+"\n")
	if closeIdx < 0 {
		return &Doc{Values: map[string]string{}, Body: s}
	}

	header := rest[:closeIdx]
	body := rest[closeIdx+len(fence)+2:]
	// Serialize writes one blank line between the closing fence and the
	// body; it is a separator, not part of the body.
	body = strings.TrimPrefix(body, "\n")

	doc := &Doc{Values: map[string]string{}, Body: body}
	scanner := bufio.NewScanner(strings.NewReader(header))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := splitKV(line)
		if !ok {
			continue
		}
		doc.Set(key, value)
	}
	return doc
}

// splitKV splits "key: value" on the first colon, trims the value and
// strips one layer of matched surrounding quotes.
func splitKV(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	value = unquote(value)
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// Serialize writes a fenced front-matter block followed by a blank line
// and the body. A block is always emitted, even for a single-key Doc.
func Serialize(d *Doc) []byte {
	var b strings.Builder
	b.WriteString(fence)
	b.WriteByte('\n')
	for _, k := range d.Keys {
		v := d.Values[k]
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(encodeValue(v))
		b.WriteByte('\n')
	}
	b.WriteString(fence)
	b.WriteByte('\n')
	b.WriteByte('\n')
	b.WriteString(d.Body)
	return []byte(b.String())
}

// encodeValue emits a simple string scalar unquoted unless it contains
// characters that would be ambiguous in the key: value grammar, in which
// case it is double-quoted.
func encodeValue(v string) string {
	if v == "" {
		return `""`
	}
	if strings.ContainsAny(v, ":\n\"'") || strings.TrimSpace(v) != v {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}

// WithID returns a copy of d with IDKey set to id, leaving every other
// key and the body untouched. Used by PushEngine/PullEngine to stamp a
// newly assigned or confirmed remote id without disturbing anything else
// a human wrote into the header.
func WithID(d *Doc, id string) *Doc {
	clone := &Doc{
		Keys:   append([]string(nil), d.Keys...),
		Values: make(map[string]string, len(d.Values)),
		Body:   d.Body,
	}
	for k, v := range d.Values {
		clone.Values[k] = v
	}
	clone.Set(IDKey, id)
	return clone
}
