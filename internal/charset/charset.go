// Package charset resolves text encodings by name and writes encoded text
// to files and HTTP responses.
package charset

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnknownCharset is returned by Lookup for names it cannot resolve.
var ErrUnknownCharset = errors.New("unknown charset")

// Charset is a named text encoding.
type Charset struct {
	// Name is the lower-case canonical name, used in Content-Type headers.
	Name string

	Encoding encoding.Encoding

	// BOM is written at the start of new files. Empty for none.
	BOM []byte
}

// UTF8 is the default charset.
var UTF8 = Charset{Name: "utf-8", Encoding: unicode.UTF8}

var known = map[string]Charset{
	"utf-8":      UTF8,
	"utf8":       UTF8,
	"utf-16le":   {Name: "utf-16le", Encoding: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), BOM: []byte{0xFF, 0xFE}},
	"unicode":    {Name: "utf-16le", Encoding: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), BOM: []byte{0xFF, 0xFE}},
	"utf-16be":   {Name: "utf-16be", Encoding: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), BOM: []byte{0xFE, 0xFF}},
	"iso-8859-1": {Name: "iso-8859-1", Encoding: charmap.ISO8859_1},
	"latin1":     {Name: "iso-8859-1", Encoding: charmap.ISO8859_1},
}

// Lookup resolves name to a Charset. An empty name is UTF-8. Names outside
// the built-in table are resolved through the IANA registry.
func Lookup(name string) (Charset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return UTF8, nil
	}
	if cs, ok := known[key]; ok {
		return cs, nil
	}

	enc, err := ianaindex.IANA.Encoding(key)
	if err != nil || enc == nil {
		return Charset{}, fmt.Errorf("%w: %q", ErrUnknownCharset, name)
	}

	canonical, err := ianaindex.MIME.Name(enc)
	if err != nil {
		canonical = key
	}
	return Charset{Name: strings.ToLower(canonical), Encoding: enc}, nil
}

// Encode converts s to the charset. Characters the charset cannot
// represent are replaced rather than rejected.
func (c Charset) Encode(s string) ([]byte, error) {
	enc := c.Encoding
	if enc == nil {
		return []byte(s), nil
	}
	return encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(s))
}

// ContentType returns mime with a charset parameter.
func (c Charset) ContentType(mime string) string {
	return mime + "; charset=" + c.Name
}

// AppendFile appends text to path, creating the file when needed. A new
// or empty file starts with the charset's BOM.
func AppendFile(path string, c Charset, text string) error {
	data, err := c.Encode(text)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.Name, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if len(c.BOM) > 0 {
		if info, statErr := f.Stat(); statErr == nil && info.Size() == 0 {
			data = append(append([]byte(nil), c.BOM...), data...)
		}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
