package tts

import "testing"

func TestCleanForSpeech(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"**negrito** e *itálico*", "negrito e itálico"},
		{"veja https://example.com/page aqui", "veja aqui"},
		{"código `fmt.Println` pronto", "código fmt.Println pronto"},
		{"  espaços   extras  ", "espaços extras"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := CleanForSpeech(tc.in); got != tc.want {
			t.Errorf("CleanForSpeech(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
