package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil input", input: nil, expected: nil},
		{name: "only blanks", input: []string{" ", ",,"}, expected: nil},
		{name: "comma separated and repeated", input: []string{"A,B", " B ", "C,,"}, expected: []string{"A", "B", "C"}},
		{name: "keeps first occurrence", input: []string{" BODY2", "BODY1,BODY2 "}, expected: []string{"BODY2", "BODY1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input, ","))
		})
	}
}
