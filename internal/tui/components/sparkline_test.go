package components

import (
	"testing"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestSparkline_WindowAndScale(t *testing.T) {
	s := NewSparkline(4, "writes/s", lipgloss.NewStyle())
	for _, v := range []float64{100, 1, 2, 4, 8} {
		s.Add(v)
	}
	assert.Equal(t, []float64{1, 2, 4, 8}, s.Data)
	assert.Equal(t, 8.0, s.Max)
	assert.Equal(t, 8.0, s.Last())

	g := s.Graph()
	assert.Equal(t, 4, utf8.RuneCountInString(g))
	assert.Equal(t, "█", string([]rune(g)[3]))
}

func TestSparkline_PadsAndHandlesZero(t *testing.T) {
	s := NewSparkline(5, "reads/s", lipgloss.NewStyle())
	s.Add(0)
	s.Add(-3)
	assert.Equal(t, "     ", s.Graph())
	assert.Contains(t, s.View(), "reads/s  0.00")

	empty := NewSparkline(0, "x", lipgloss.NewStyle())
	assert.Empty(t, empty.View())
}
