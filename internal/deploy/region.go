package deploy

import (
	"fmt"
	"strings"
)

// MarkerStyle controls how a region's begin/end sentinels are rendered for
// a given artifact syntax.
type MarkerStyle struct {
	Prefix string // comment opener, e.g. "# " or "// " or "<!-- "
	Suffix string // comment closer, "" for line comments
}

var (
	HashMarkers  = MarkerStyle{Prefix: "# "}
	SlashMarkers = MarkerStyle{Prefix: "// "}
	XMLMarkers   = MarkerStyle{Prefix: "<!-- ", Suffix: " -->"}
)

const (
	beginLabel = "BEGIN WARDEN PROTECTION: "
	endLabel   = "END WARDEN PROTECTION: "
)

func (s MarkerStyle) begin(key string) string {
	return s.Prefix + beginLabel + key + s.Suffix
}

func (s MarkerStyle) end(key string) string {
	return s.Prefix + endLabel + key + s.Suffix
}

// node is one segment of a parsed artifact: either foreign text preserved
// verbatim or a managed region owned by a rule key.
type node struct {
	region bool
	key    string
	lines  []string
}

// Document is a marker-aware view of an artifact's text. Foreign content
// passes through untouched on every render; only managed regions are ours
// to rewrite or remove.
type Document struct {
	style MarkerStyle
	nodes []node
}

// ParseDocument splits content into preserved text and managed regions.
// An unterminated begin marker is treated as running to end of file so a
// truncated artifact cannot leak half a region into foreign text.
func ParseDocument(content string, style MarkerStyle) *Document {
	doc := &Document{style: style}
	if content == "" {
		return doc
	}

	var current node
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		if !current.region {
			if key, ok := matchMarker(line, style, beginLabel); ok {
				if len(current.lines) > 0 {
					doc.nodes = append(doc.nodes, current)
				}
				current = node{region: true, key: key}
				continue
			}
			current.lines = append(current.lines, line)
			continue
		}

		if key, ok := matchMarker(line, style, endLabel); ok && key == current.key {
			doc.nodes = append(doc.nodes, current)
			current = node{}
			continue
		}
		current.lines = append(current.lines, line)
	}
	if current.region || len(current.lines) > 0 {
		doc.nodes = append(doc.nodes, current)
	}
	return doc
}

func matchMarker(line string, style MarkerStyle, label string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, strings.TrimSpace(style.Prefix)) {
		return "", false
	}
	body := strings.TrimSpace(strings.TrimPrefix(trimmed, strings.TrimSpace(style.Prefix)))
	if style.Suffix != "" {
		closer := strings.TrimSpace(style.Suffix)
		if !strings.HasSuffix(body, closer) {
			return "", false
		}
		body = strings.TrimSpace(strings.TrimSuffix(body, closer))
	}
	if !strings.HasPrefix(body, label) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(body, label)), true
}

// Keys lists managed region keys in document order.
func (d *Document) Keys() []string {
	var keys []string
	for _, n := range d.nodes {
		if n.region {
			keys = append(keys, n.key)
		}
	}
	return keys
}

// Region returns the body lines of a managed region.
func (d *Document) Region(key string) ([]string, bool) {
	for _, n := range d.nodes {
		if n.region && n.key == key {
			return n.lines, true
		}
	}
	return nil, false
}

// SetRegion replaces an existing region's body in place, or appends a new
// region before the first preserved line starting with insertBefore (or at
// the end when the sentinel is absent or empty).
func (d *Document) SetRegion(key string, lines []string, insertBefore string) {
	for i, n := range d.nodes {
		if n.region && n.key == key {
			d.nodes[i].lines = lines
			return
		}
	}

	fresh := node{region: true, key: key, lines: lines}
	if insertBefore != "" {
		for i, n := range d.nodes {
			if n.region {
				continue
			}
			if idx := lineIndex(n.lines, insertBefore); idx >= 0 {
				d.insertAt(i, idx, fresh)
				return
			}
		}
	}
	d.nodes = append(d.nodes, fresh)
}

// lineIndex finds the first line starting with the sentinel, ignoring
// leading whitespace.
func lineIndex(lines []string, sentinel string) int {
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), sentinel) {
			return i
		}
	}
	return -1
}

// insertAt splits text node i at line idx and places fresh between the
// halves.
func (d *Document) insertAt(i, idx int, fresh node) {
	before := node{lines: append([]string(nil), d.nodes[i].lines[:idx]...)}
	after := node{lines: append([]string(nil), d.nodes[i].lines[idx:]...)}

	tail := append([]node(nil), d.nodes[i+1:]...)
	d.nodes = d.nodes[:i]
	if len(before.lines) > 0 {
		d.nodes = append(d.nodes, before)
	}
	d.nodes = append(d.nodes, fresh)
	if len(after.lines) > 0 {
		d.nodes = append(d.nodes, after)
	}
	d.nodes = append(d.nodes, tail...)
}

// RemoveRegion deletes a managed region. Foreign text is never removed.
func (d *Document) RemoveRegion(key string) bool {
	for i, n := range d.nodes {
		if n.region && n.key == key {
			d.nodes = append(d.nodes[:i], d.nodes[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAllRegions strips every managed region, leaving only foreign text.
// Used by full rebuilds before re-adding the desired set.
func (d *Document) RemoveAllRegions() int {
	removed := 0
	kept := d.nodes[:0]
	for _, n := range d.nodes {
		if n.region {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	d.nodes = kept
	return removed
}

// Render serializes the document back to artifact text. Region bodies are
// framed by their sentinels; rendering the same document twice yields
// byte-identical output.
func (d *Document) Render() string {
	var b strings.Builder
	for i, n := range d.nodes {
		if !n.region {
			writeLines(&b, n.lines, i == len(d.nodes)-1)
			continue
		}
		b.WriteString(d.style.begin(n.key))
		b.WriteString("\n")
		for _, line := range n.lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString(d.style.end(n.key))
		b.WriteString("\n")
	}
	return b.String()
}

func writeLines(b *strings.Builder, lines []string, last bool) {
	for i, line := range lines {
		b.WriteString(line)
		// A trailing empty element represents the file's final newline;
		// avoid inventing an extra blank line at EOF.
		if !(last && i == len(lines)-1 && line == "") {
			b.WriteString("\n")
		}
	}
}

// String implements fmt.Stringer for debug logging.
func (d *Document) String() string {
	return fmt.Sprintf("document(%d nodes, %d regions)", len(d.nodes), len(d.Keys()))
}
