package charset

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantBOM  bool
	}{
		{"", "utf-8", false},
		{"UTF-8", "utf-8", false},
		{"utf8", "utf-8", false},
		{"utf-16le", "utf-16le", true},
		{"Unicode", "utf-16le", true},
		{"ISO-8859-1", "iso-8859-1", false},
		{"latin1", "iso-8859-1", false},
		{" iso-8859-1 ", "iso-8859-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cs, err := Lookup(tt.input)
			if err != nil {
				t.Fatalf("Lookup(%q) error: %v", tt.input, err)
			}
			if cs.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", cs.Name, tt.wantName)
			}
			if got := len(cs.BOM) > 0; got != tt.wantBOM {
				t.Errorf("has BOM = %v, want %v", got, tt.wantBOM)
			}
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("no-such-charset")
	if !errors.Is(err, ErrUnknownCharset) {
		t.Errorf("err = %v, want ErrUnknownCharset", err)
	}
}

func TestCharset_Encode(t *testing.T) {
	tests := []struct {
		charset string
		input   string
		want    []byte
	}{
		{"utf-8", "Succès", []byte("Succès")},
		{"iso-8859-1", "Succès", []byte{'S', 'u', 'c', 'c', 0xE8, 's'}},
		{"utf-16le", "Ok", []byte{'O', 0, 'k', 0}},
	}

	for _, tt := range tests {
		t.Run(tt.charset, func(t *testing.T) {
			cs, err := Lookup(tt.charset)
			if err != nil {
				t.Fatal(err)
			}
			got, err := cs.Encode(tt.input)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCharset_Encode_Unsupported(t *testing.T) {
	cs, _ := Lookup("iso-8859-1")
	got, err := cs.Encode("a€b")
	if err != nil {
		t.Fatalf("unsupported characters should be replaced, got error %v", err)
	}
	if len(got) != 3 || got[0] != 'a' || got[2] != 'b' {
		t.Errorf("Encode = %v", got)
	}
}

func TestCharset_ContentType(t *testing.T) {
	cs, _ := Lookup("latin1")
	if got := cs.ContentType("text/plain"); got != "text/plain; charset=iso-8859-1" {
		t.Errorf("ContentType = %q", got)
	}
}

func TestAppendFile_BOMOnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	cs, _ := Lookup("utf-16le")

	if err := AppendFile(path, cs, "a"); err != nil {
		t.Fatal(err)
	}
	if err := AppendFile(path, cs, "b"); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xFF, 0xFE, 'a', 0, 'b', 0}
	if !bytes.Equal(got, want) {
		t.Errorf("file = %v, want %v", got, want)
	}
}

func TestAppendFile_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.log")
	if err := AppendFile(path, UTF8, "x"); err == nil {
		t.Error("expected error for missing directory")
	}
}
