package dismissal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDismissal(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		// Portuguese
		{"tchau", true},
		{"Tchau, obrigado!", true},
		{"até logo", true},
		{"valeu, falou", true},
		{"pode ir", true},
		{"pode desligar agora", true},
		{"está bom, tchau", true},
		{"é isso", true},
		{"é isso aí", true},

		// English
		{"goodbye", true},
		{"bye bye", true},
		{"see you later", true},
		{"that's all, thanks", true},
		{"gotta go", true},
		{"good night", true},
		{"turn off", true},

		// Not dismissals
		{"olá, como vai?", false},
		{"tchau ou não?", true}, // still contains "tchau"
		{"o que é isso?", false},
		{"obrigado pela ajuda", false},
		{"hello there", false},
		{"tell me more", false},
		{"", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, IsDismissal(tc.text), "text: %q", tc.text)
	}
}

func TestMatched(t *testing.T) {
	hits := Matched("valeu, falou")
	assert.Len(t, hits, 2)

	assert.Empty(t, Matched("tell me more"))
	assert.Empty(t, Matched(""))
}
