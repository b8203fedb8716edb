package token

import "testing"

func TestLookupKeyword(t *testing.T) {
	cases := map[string]Kind{
		"mode":   Mode,
		"mut":    Mut,
		"func":   Func,
		"struct": Struct,
		"switch": Switch,
		"hello":  Identifier,
		"fn":     InvalidFn,
		"var":    InvalidVar,
		"const":  InvalidConst,
		"NULL":   InvalidNull,
	}
	for text, want := range cases {
		if got := Lookup(text); got != want {
			t.Errorf("Lookup(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestKindString(t *testing.T) {
	if Mode.String() != "mode" {
		t.Errorf("Mode.String() = %q, want %q", Mode.String(), "mode")
	}
	if got := Kind(9999).String(); got != "Kind(9999)" {
		t.Errorf("unknown kind String() = %q, want fallback format", got)
	}
}

func TestSuggestionOperators(t *testing.T) {
	cases := map[string]string{
		"+":  "write 'add(a, b)' instead of 'a + b'",
		"==": "write 'eq(a, b)' or 'Type.eq(a, b)' instead of 'a == b'",
	}
	for op, want := range cases {
		if got := Suggestion(InvalidOperator, op); got != want {
			t.Errorf("Suggestion(InvalidOperator, %q) = %q, want %q", op, got, want)
		}
	}
}

func TestTokenString(t *testing.T) {
	tok := Token{Kind: Identifier, Text: "foo", Line: 1, Col: 2}
	want := `1:2 Identifier "foo"`
	if got := tok.String(); got != want {
		t.Errorf("Token.String() = %q, want %q", got, want)
	}
}
