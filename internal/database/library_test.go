package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "Wingspan", want: "Wingspan"},
		{name: "percent", input: "100%", want: `100\%`},
		{name: "underscore", input: "7_Wonders", want: `7\_Wonders`},
		{name: "backslash", input: `a\b`, want: `a\\b`},
		{name: "mixed", input: `%_\`, want: `\%\_\\`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeLike(tt.input))
		})
	}
}
