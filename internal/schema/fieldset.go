package schema

import "strings"

// FieldSet is a parsed field-selection mini-language value, as used by
// @key(fields:), @requires(fields:) and @provides(fields:). Grammar:
//
//	fieldset   := selection*
//	selection  := name subselection?
//	subselection := '{' selection* '}'
//
// e.g. "id" / "id sku" / "id variation { id }".
type FieldSet struct {
	Raw        string
	Selections []FieldSelection
}

// FieldSelection is one field reference inside a FieldSet, optionally
// with a nested selection for composite key fields.
type FieldSelection struct {
	Name   string
	Nested []FieldSelection
}

// Names returns the top-level field names of the set (non-recursive),
// used when only the flat key-field list is needed.
func (fs *FieldSet) Names() []string {
	if fs == nil {
		return nil
	}
	names := make([]string, 0, len(fs.Selections))
	for _, sel := range fs.Selections {
		names = append(names, sel.Name)
	}
	return names
}

// ParseFieldSet parses a field-selection mini-language string.
func ParseFieldSet(raw string) (*FieldSet, error) {
	p := &fieldSetParser{input: raw}
	sels, err := p.parseSelections()
	if err != nil {
		return nil, err
	}
	return &FieldSet{Raw: raw, Selections: sels}, nil
}

type fieldSetParser struct {
	input string
	pos   int
}

func (p *fieldSetParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n') {
		p.pos++
	}
}

func (p *fieldSetParser) parseSelections() ([]FieldSelection, error) {
	var sels []FieldSelection
	for {
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] == '}' {
			return sels, nil
		}
		name := p.parseName()
		if name == "" {
			return sels, nil
		}
		sel := FieldSelection{Name: name}
		p.skipSpace()
		if p.pos < len(p.input) && p.input[p.pos] == '{' {
			p.pos++ // consume '{'
			nested, err := p.parseSelections()
			if err != nil {
				return nil, err
			}
			sel.Nested = nested
			p.skipSpace()
			if p.pos < len(p.input) && p.input[p.pos] == '}' {
				p.pos++ // consume '}'
			}
		}
		sels = append(sels, sel)
	}
}

func (p *fieldSetParser) parseName() string {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '{' || c == '}' {
			break
		}
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos])
}
