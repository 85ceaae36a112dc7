package winget

import "testing"

func TestMatchExact(t *testing.T) {
	if !Match(MatchExact, "Microsoft.VisualStudioCode", "microsoft.visualstudiocode") {
		t.Fatalf("expected exact match under case folding")
	}
	if Match(MatchExact, "Code", "Microsoft.VisualStudioCode") {
		t.Fatalf("expected exact match to reject partial identifier")
	}
}

func TestMatchStartsWithAndSubstring(t *testing.T) {
	if !Match(MatchStartsWith, "Microsoft", "Microsoft.VisualStudioCode") {
		t.Fatalf("expected prefix match")
	}
	if Match(MatchStartsWith, "VisualStudio", "Microsoft.VisualStudioCode") {
		t.Fatalf("expected prefix match to fail on non-prefix")
	}
	if !Match(MatchSubstring, "VisualStudio", "Microsoft.VisualStudioCode") {
		t.Fatalf("expected substring match")
	}
}

func TestMatchWildcard(t *testing.T) {
	if !Match(MatchWildcard, "Microsoft.*", "Microsoft.VisualStudioCode") {
		t.Fatalf("expected wildcard match")
	}
	if Match(MatchWildcard, "Adobe.*", "Microsoft.VisualStudioCode") {
		t.Fatalf("expected wildcard mismatch")
	}
}

func TestMatchFuzzy(t *testing.T) {
	if !Match(MatchFuzzy, "vscode", "visualstudiocode") {
		t.Fatalf("expected fuzzy subsequence match")
	}
	if Match(MatchFuzzy, "zzz", "visualstudiocode") {
		t.Fatalf("expected fuzzy mismatch for absent subsequence")
	}
}

func TestMatchFuzzySubstring(t *testing.T) {
	if !Match(MatchFuzzySubstring, "vscode", "microsoft visualstudiocode editor") {
		t.Fatalf("expected fuzzy substring to match within a word")
	}
}

func TestMatchDoubleLowerCaseStable(t *testing.T) {
	for _, mt := range []MatchType{MatchExact, MatchStartsWith, MatchCaseInsensitive, MatchSubstring} {
		a := Match(mt, "Vscode", "Microsoft.VisualStudioCode")
		b := Match(mt, "vscode", "microsoft.visualstudiocode")
		if a != b {
			t.Fatalf("%s: expected stability under double lower-casing", mt)
		}
	}
}
