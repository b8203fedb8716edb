package lexer

import (
	"testing"

	"github.com/saruga/til/internal/til/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestLexBasicProgram(t *testing.T) {
	toks, errs := Lex("t.til", `mode script; println("hi")`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := []token.Kind{
		token.Mode, token.Identifier, token.Semicolon,
		token.Identifier, token.LeftParen, token.Str, token.RightParen,
		token.Eof,
	}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if toks[5].Text != "hi" {
		t.Errorf("string literal text = %q, want %q", toks[5].Text, "hi")
	}
}

func TestLexLineComment(t *testing.T) {
	toks, errs := Lex("t.til", "mode script\n# a comment\nmut x := 1")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(toks) == 0 || toks[0].Kind != token.Mode {
		t.Fatalf("expected leading Mode token, got %v", toks)
	}
}

func TestLexForbiddenKeyword(t *testing.T) {
	_, errs := Lex("t.til", "mode script; var x := 1")
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %d: %v", len(errs), errs)
	}
	if errs[0].Suggestion == "" {
		t.Error("expected a suggestion for forbidden 'var'")
	}
}

func TestLexBareOperatorRejected(t *testing.T) {
	_, errs := Lex("t.til", "mode script; mut x := 1 + 2")
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error for bare '+', got %d: %v", len(errs), errs)
	}
	if errs[0].Suggestion != "write 'add(a, b)' instead of 'a + b'" {
		t.Errorf("unexpected suggestion: %q", errs[0].Suggestion)
	}
}

func TestLexUnterminatedString(t *testing.T) {
	_, errs := Lex("t.til", `mode script; mut x := "oops`)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %d: %v", len(errs), errs)
	}
}

func TestLexAccumulatesMultipleErrors(t *testing.T) {
	_, errs := Lex("t.til", "var a := 1 fn b := 2")
	if len(errs) != 2 {
		t.Fatalf("expected two accumulated errors, got %d: %v", len(errs), errs)
	}
}

func TestLexStringEscapes(t *testing.T) {
	toks, errs := Lex("t.til", `mode script; mut x := "a\nb\t\"c\""`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	var str string
	for _, tk := range toks {
		if tk.Kind == token.Str {
			str = tk.Text
		}
	}
	if str != "a\nb\t\"c\"" {
		t.Errorf("got %q", str)
	}
}

func TestErrorFormat(t *testing.T) {
	e := &Error{Path: "f.til", Line: 3, Col: 5, Message: "bad thing", Suggestion: "do this instead"}
	want := "f.til:3:5: Lexical ERROR: bad thing\nSuggestion: do this instead"
	if e.Error() != want {
		t.Errorf("got %q, want %q", e.Error(), want)
	}
}
