package security

import (
	"sort"
	"strings"
)

// Mask is what replaces secret values in output.
const Mask = "***"

// Masker removes known secret values from text before it is logged or
// stored.
type Masker struct {
	values []string
}

// NewMasker builds a masker. Longer values are replaced first so a secret
// containing another secret is fully hidden.
func NewMasker(values ...string) *Masker {
	m := &Masker{}
	for _, v := range values {
		m.Add(v)
	}
	return m
}

// Add registers another value. Every non-empty value is masked, however
// short.
func (m *Masker) Add(v string) {
	if v == "" {
		return
	}
	for _, have := range m.values {
		if have == v {
			return
		}
	}
	m.values = append(m.values, v)
	sort.Slice(m.values, func(i, j int) bool { return len(m.values[i]) > len(m.values[j]) })
}

func (m *Masker) Mask(s string) string {
	if m == nil {
		return s
	}
	for _, v := range m.values {
		s = strings.ReplaceAll(s, v, Mask)
	}
	return s
}
