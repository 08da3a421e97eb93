package util

import "testing"

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "Facts\x00\x01\nThe engineer\x02 reported the flaw.\t"
	out := SanitizeText(in)
	if out != "Facts\nThe engineer reported the flaw." {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}

func TestSanitizeTextKeepsCleanInput(t *testing.T) {
	in := "Discussion\n\nThe board weighed public safety against confidentiality."
	if out := SanitizeText(in); out != in {
		t.Fatalf("clean input changed: %q", out)
	}
}
