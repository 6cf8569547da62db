package fontconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

const (
	woff2Signature uint32 = 0x774F4632 // 'wOF2'
	woff2HeaderLen        = 48

	// Transform version 3 on glyf/loca means "stored as is".
	woff2NullGlyfTransform = 3 << 6
	woff2ArbitraryTag      = 63
)

// woff2KnownTags is the fixed tag table of the WOFF2 directory; a table whose
// tag is listed here is stored as its index instead of four bytes.
var woff2KnownTags = [...]string{
	"cmap", "head", "hhea", "hmtx", "maxp", "name", "OS/2", "post",
	"cvt ", "fpgm", "glyf", "loca", "prep", "CFF ", "VORG", "EBDT",
	"EBLC", "gasp", "hdmx", "kern", "LTSH", "PCLT", "VDMX", "vhea",
	"vmtx", "BASE", "GDEF", "GPOS", "GSUB", "EBSC", "JSTF", "MATH",
	"CBDT", "CBLC", "COLR", "CPAL", "SVG ", "sbix", "acnt", "avar",
	"bdat", "bloc", "bsln", "cvar", "fdsc", "feat", "fmtx", "fvar",
	"gvar", "hsty", "just", "lcar", "mort", "morx", "opbd", "prop",
	"trak", "Zapf", "Silf", "Glat", "Gloc", "Feat", "Sill",
}

var woff2TagIndex = func() map[string]byte {
	m := make(map[string]byte, len(woff2KnownTags))
	for i, t := range woff2KnownTags {
		m[t] = byte(i)
	}
	return m
}()

// ToWOFF2 converts an sfnt font to WOFF 2.0.
func ToWOFF2(data []byte) ([]byte, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return EncodeWOFF2(f)
}

// EncodeWOFF2 serializes f as WOFF 2.0. Every table is stored untransformed
// and all table data goes through one Brotli stream.
func EncodeWOFF2(f *Font) ([]byte, error) {
	sfntSize := len(f.Marshal())
	tags := woff2Order(f.Tags())

	var dir bytes.Buffer
	var stream bytes.Buffer
	for _, t := range tags {
		data := f.Table(t)
		idx, known := woff2TagIndex[t]
		flags := byte(woff2ArbitraryTag)
		if known {
			flags = idx
		}
		if t == "glyf" || t == "loca" {
			flags |= woff2NullGlyfTransform
		}
		dir.WriteByte(flags)
		if !known {
			dir.WriteString(t)
		}
		dir.Write(appendBase128(nil, uint32(len(data))))
		stream.Write(data)
	}

	var compressed bytes.Buffer
	bw := brotli.NewWriterLevel(&compressed, brotli.BestCompression)
	if _, err := bw.Write(stream.Bytes()); err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}

	bodyLen := woff2HeaderLen + dir.Len() + compressed.Len()
	total := pad4(bodyLen)
	out := make([]byte, total)

	major, minor := f.fontRevision()
	binary.BigEndian.PutUint32(out[0:], woff2Signature)
	binary.BigEndian.PutUint32(out[4:], f.Flavor)
	binary.BigEndian.PutUint32(out[8:], uint32(total))
	binary.BigEndian.PutUint16(out[12:], uint16(len(tags)))
	binary.BigEndian.PutUint32(out[16:], uint32(sfntSize))
	binary.BigEndian.PutUint32(out[20:], uint32(compressed.Len()))
	binary.BigEndian.PutUint16(out[24:], major)
	binary.BigEndian.PutUint16(out[26:], minor)
	// metadata and private blocks stay zero

	copy(out[woff2HeaderLen:], dir.Bytes())
	copy(out[woff2HeaderLen+dir.Len():], compressed.Bytes())
	return out, nil
}

// woff2Order returns sorted tags with loca moved directly after glyf.
func woff2Order(sorted []string) []string {
	hasGlyf, hasLoca := false, false
	for _, t := range sorted {
		hasGlyf = hasGlyf || t == "glyf"
		hasLoca = hasLoca || t == "loca"
	}
	if !hasGlyf || !hasLoca {
		return sorted
	}
	out := make([]string, 0, len(sorted))
	for _, t := range sorted {
		switch t {
		case "loca":
		case "glyf":
			out = append(out, "glyf", "loca")
		default:
			out = append(out, t)
		}
	}
	return out
}

// appendBase128 appends v in UIntBase128 encoding: big-endian 7-bit groups,
// high bit set on every byte but the last, no leading zero groups.
func appendBase128(b []byte, v uint32) []byte {
	var tmp [5]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7f)
	for v >>= 7; v != 0; v >>= 7 {
		i--
		tmp[i] = byte(v&0x7f) | 0x80
	}
	return append(b, tmp[i:]...)
}

var errBase128 = errors.New("invalid UIntBase128")

// readBase128 decodes a UIntBase128 value and returns the bytes consumed.
func readBase128(b []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < 5 && i < len(b); i++ {
		c := b[i]
		if i == 0 && c == 0x80 {
			return 0, 0, errBase128
		}
		if v&0xFE000000 != 0 {
			return 0, 0, errBase128
		}
		v = v<<7 | uint32(c&0x7f)
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, errBase128
}

// DecodeWOFF2 unpacks a WOFF 2.0 file whose tables all use null transforms.
func DecodeWOFF2(data []byte) (*Font, error) {
	if len(data) < woff2HeaderLen || binary.BigEndian.Uint32(data) != woff2Signature {
		return nil, fmt.Errorf("%w: not a WOFF2 file", ErrUnsupportedFont)
	}
	n := int(binary.BigEndian.Uint16(data[12:]))
	compLen := int(binary.BigEndian.Uint32(data[20:]))

	type dirEntry struct {
		tag    string
		length int
	}
	entries := make([]dirEntry, 0, n)
	p := data[woff2HeaderLen:]
	for i := 0; i < n; i++ {
		if len(p) == 0 {
			return nil, fmt.Errorf("%w: truncated WOFF2 directory", ErrUnsupportedFont)
		}
		flags := p[0]
		p = p[1:]
		var tag string
		if idx := flags & 0x3f; idx == woff2ArbitraryTag {
			if len(p) < 4 {
				return nil, fmt.Errorf("%w: truncated WOFF2 directory", ErrUnsupportedFont)
			}
			tag, p = string(p[:4]), p[4:]
		} else {
			tag = woff2KnownTags[idx]
		}
		version := flags >> 6
		transformed := (tag == "glyf" || tag == "loca") && version != 3 ||
			(tag != "glyf" && tag != "loca") && version != 0
		if transformed {
			return nil, fmt.Errorf("%w: transformed %s table", ErrUnsupportedFont, tag)
		}
		length, used, err := readBase128(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFont, err)
		}
		p = p[used:]
		entries = append(entries, dirEntry{tag: tag, length: int(length)})
	}
	if len(p) < compLen {
		return nil, fmt.Errorf("%w: truncated WOFF2 data", ErrUnsupportedFont)
	}

	stream, err := io.ReadAll(brotli.NewReader(bytes.NewReader(p[:compLen])))
	if err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}

	f := &Font{Flavor: binary.BigEndian.Uint32(data[4:]), tables: make(map[string][]byte, n)}
	off := 0
	for _, e := range entries {
		if off+e.length > len(stream) {
			return nil, fmt.Errorf("%w: table %s out of bounds", ErrUnsupportedFont, e.tag)
		}
		f.tables[e.tag] = stream[off : off+e.length : off+e.length]
		off += e.length
	}
	return f, nil
}
