package pipeline

import "testing"

func TestSanitizeReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		maxChars int
		want     string
	}{
		{
			name:     "passthrough",
			in:       "The weather looks fine today.",
			maxChars: 100,
			want:     "The weather looks fine today.",
		},
		{
			name:     "strips markup",
			in:       "**Sure!** Here is `the answer`: #42",
			maxChars: 100,
			want:     "Sure! Here is the answer: 42",
		},
		{
			name:     "collapses whitespace and newlines",
			in:       "line one\n\nline two\t\t end",
			maxChars: 100,
			want:     "line one line two end",
		},
		{
			name:     "truncates at sentence boundary",
			in:       "First sentence. Second sentence that runs well past the limit.",
			maxChars: 30,
			want:     "First sentence.",
		},
		{
			name:     "truncates at word boundary without sentence end",
			in:       "one two three four five six seven",
			maxChars: 17,
			want:     "one two three",
		},
		{
			name:     "zero max disables truncation",
			in:       "a rather long reply that would otherwise be cut",
			maxChars: 0,
			want:     "a rather long reply that would otherwise be cut",
		},
		{
			name:     "empty input",
			in:       "",
			maxChars: 100,
			want:     "",
		},
		{
			name:     "markup only collapses to empty",
			in:       "*** ``` ###",
			maxChars: 100,
			want:     "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeReply(tc.in, tc.maxChars); got != tc.want {
				t.Errorf("sanitizeReply(%q, %d) = %q, want %q", tc.in, tc.maxChars, got, tc.want)
			}
		})
	}
}
