package urlnorm

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercases scheme host and path",
			input: "HTTPS://Docs.Example.COM/Guide",
			want:  "https://docs.example.com/guide",
		},
		{
			name:  "trims whitespace",
			input: "  https://docs.example.com/guide  ",
			want:  "https://docs.example.com/guide",
		},
		{
			name:  "no query string returned unchanged aside from case",
			input: "https://docs.example.com/guide",
			want:  "https://docs.example.com/guide",
		},
		{
			name:  "query params reordered into key order",
			input: "https://docs.example.com/search?b=2&a=1",
			want:  "https://docs.example.com/search?a=1&b=2",
		},
		{
			name:  "duplicate keys keep last value",
			input: "https://docs.example.com/search?a=1&a=2",
			want:  "https://docs.example.com/search?a=2",
		},
		{
			name:  "empty pairs ignored",
			input: "https://docs.example.com/search?a=1&&b=2&",
			want:  "https://docs.example.com/search?a=1&b=2",
		},
		{
			name:  "empty query string drops the question mark",
			input: "https://docs.example.com/guide?",
			want:  "https://docs.example.com/guide",
		},
		{
			name:  "key without value preserved without equals",
			input: "https://docs.example.com/search?flag&a=1",
			want:  "https://docs.example.com/search?a=1&flag",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://Docs.Example.COM/Guide?b=2&a=1",
		"https://docs.example.com/guide",
		"  https://docs.example.com/search?a=1&a=2  ",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first := Normalize(in)
			second := Normalize(first)
			if first != second {
				t.Errorf("Normalize is not idempotent: first=%q second=%q", first, second)
			}
		})
	}
}

func TestNormalizeDeterministicAcrossParamOrder(t *testing.T) {
	a := Normalize("https://docs.example.com/x?a=1&b=2&c=3")
	b := Normalize("https://docs.example.com/x?c=3&a=1&b=2")
	if a != b {
		t.Errorf("expected param-order-independent equality: %q != %q", a, b)
	}
}
