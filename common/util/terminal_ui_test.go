package util

import "testing"

func TestFormatTable(t *testing.T) {
	t.Parallel()

	got := FormatTable([][]string{
		{"PORT", "OUTPUT"},
		{"PDF:", `C:\out`},
		{"Archive:", ""},
	})
	want := "PORT      OUTPUT\n" +
		"PDF:      C:\\out\n" +
		"Archive:  \n"
	if got != want {
		t.Fatalf("FormatTable:\n%q\nwant\n%q", got, want)
	}

	if FormatTable(nil) != "" {
		t.Fatal("empty table should format to an empty string")
	}
}
