package course

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// NoLetter is returned when no threshold matches.
const NoLetter = "?"

// LetterGrade pairs a letter with the minimum overall score that earns it.
type LetterGrade struct {
	Letter string
	Min    float64
}

// LetterTable is evaluated first-match in the order it was configured, so it
// is written highest threshold first by convention. It is never sorted.
type LetterTable []LetterGrade

// Letter returns the first letter whose threshold is <= score.
func (t LetterTable) Letter(score float64) string {
	for _, g := range t {
		if score >= g.Min {
			return g.Letter
		}
	}
	return NoLetter
}

// UnmarshalYAML keeps the mapping order of letter_grades.
func (t *LetterTable) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("letter_grades: expected a mapping, got line %d", n.Line)
	}
	out := make(LetterTable, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		var min float64
		if err := n.Content[i+1].Decode(&min); err != nil {
			return fmt.Errorf("letter_grades[%s]: %w", n.Content[i].Value, err)
		}
		out = append(out, LetterGrade{Letter: n.Content[i].Value, Min: min})
	}
	*t = out
	return nil
}

// MarshalYAML writes the table back as an ordered mapping.
func (t LetterTable) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, g := range t {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: g.Letter},
			&yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatFloat(g.Min, 'g', -1, 64)},
		)
	}
	return n, nil
}

// UnmarshalJSON keeps the key order of the letter_grades object.
func (t *LetterTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("letter_grades: expected an object")
	}
	var out LetterTable
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		letter, _ := tok.(string)
		var min float64
		if err := dec.Decode(&min); err != nil {
			return fmt.Errorf("letter_grades[%s]: %w", letter, err)
		}
		out = append(out, LetterGrade{Letter: letter, Min: min})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*t = out
	return nil
}

// MarshalJSON writes the table as an object in configured order.
func (t LetterTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(g.Letter)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(g.Min, 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
