package types

import "testing"

func TestNormalizePathCleansRelativeForm(t *testing.T) {
	cases := map[string]string{
		"a.txt":        "a.txt",
		"dir/a.txt":    "dir/a.txt",
		"./dir/a.txt":  "dir/a.txt",
		"dir//a.txt":   "dir/a.txt",
		"dir/./a.txt":  "dir/a.txt",
		"dir/sub/../b": "dir/b",
	}
	for in, want := range cases {
		got, err := NormalizePath(in)
		if err != nil {
			t.Fatalf("NormalizePath(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Fatalf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizePathRejectsEscape(t *testing.T) {
	for _, in := range []string{"..", "../a", "a/../../b", "../../etc/passwd"} {
		if _, err := NormalizePath(in); err == nil {
			t.Fatalf("NormalizePath(%q) should have rejected a root escape", in)
		}
	}
}

func TestNormalizePathRejectsAbsolute(t *testing.T) {
	if _, err := NormalizePath("/etc/passwd"); err == nil {
		t.Fatal("NormalizePath(\"/etc/passwd\") should have rejected an absolute path")
	}
}

func TestNormalizePathRejectsEmpty(t *testing.T) {
	for _, in := range []string{"", ".", "dir/.."} {
		if _, err := NormalizePath(in); err == nil {
			t.Fatalf("NormalizePath(%q) should have rejected an empty relative path", in)
		}
	}
}
