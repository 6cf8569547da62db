package fontconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-text/typesetting/font/opentype"
)

// ErrUnsupportedFont is returned for input that is not a single sfnt font.
var ErrUnsupportedFont = errors.New("unsupported font")

// sfnt version tags.
const (
	flavorTrueType uint32 = 0x00010000
	flavorApple    uint32 = 0x74727565 // 'true'
	flavorCFF      uint32 = 0x4F54544F // 'OTTO'
)

// headAdjustmentMagic is the constant the whole-font checksum is subtracted
// from to produce head.checkSumAdjustment.
const headAdjustmentMagic uint32 = 0xB1B0AFBA

// Font is an sfnt font held as raw tables.
type Font struct {
	Flavor uint32
	tables map[string][]byte
}

// Parse loads every table of an sfnt font.
func Parse(data []byte) (*Font, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrUnsupportedFont, len(data))
	}
	flavor := binary.BigEndian.Uint32(data)
	switch flavor {
	case flavorTrueType, flavorApple, flavorCFF:
	default:
		return nil, fmt.Errorf("%w: detected %s", ErrUnsupportedFont, mimetype.Detect(data).String())
	}

	ld, err := opentype.NewLoader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFont, err)
	}
	f := &Font{Flavor: flavor, tables: make(map[string][]byte)}
	for _, tag := range ld.Tables() {
		raw, err := ld.RawTable(tag)
		if err != nil {
			return nil, fmt.Errorf("read table %s: %w", tagString(tag), err)
		}
		f.tables[tagString(tag)] = raw
	}
	return f, nil
}

func tagString(t opentype.Tag) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(t))
	return string(b[:])
}

// Tags returns the table tags in ascending byte order.
func (f *Font) Tags() []string {
	tags := make([]string, 0, len(f.tables))
	for t := range f.tables {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Table returns the raw bytes of a table, or nil when absent.
func (f *Font) Table(tag string) []byte { return f.tables[tag] }

// Has reports whether the font carries a table.
func (f *Font) Has(tag string) bool {
	_, ok := f.tables[tag]
	return ok
}

// Set replaces or adds a table.
func (f *Font) Set(tag string, data []byte) { f.tables[tag] = data }

// Delete removes a table.
func (f *Font) Delete(tag string) { delete(f.tables, tag) }

// HasCFF reports whether the font carries PostScript outlines.
func (f *Font) HasCFF() bool { return f.Has("CFF ") || f.Has("CFF2") }

// Marshal serializes the font with tables sorted by tag, each 4-byte
// aligned, and a recomputed head.checkSumAdjustment. The head table held by
// f is updated to match.
func (f *Font) Marshal() []byte {
	tags := f.Tags()
	n := len(tags)
	headerLen := 12 + 16*n

	size := headerLen
	for _, t := range tags {
		size += pad4(len(f.tables[t]))
	}
	out := make([]byte, size)

	if head := f.tables["head"]; len(head) >= 12 {
		head = append([]byte(nil), head...)
		binary.BigEndian.PutUint32(head[8:], 0)
		f.tables["head"] = head
	}

	sr, es, rs := searchParams(n, 16)
	binary.BigEndian.PutUint32(out[0:], f.Flavor)
	binary.BigEndian.PutUint16(out[4:], uint16(n))
	binary.BigEndian.PutUint16(out[6:], sr)
	binary.BigEndian.PutUint16(out[8:], es)
	binary.BigEndian.PutUint16(out[10:], rs)

	offset := headerLen
	headOffset := -1
	for i, t := range tags {
		data := f.tables[t]
		rec := out[12+16*i:]
		copy(rec[0:4], t)
		binary.BigEndian.PutUint32(rec[4:], checksum(data))
		binary.BigEndian.PutUint32(rec[8:], uint32(offset))
		binary.BigEndian.PutUint32(rec[12:], uint32(len(data)))
		copy(out[offset:], data)
		if t == "head" {
			headOffset = offset
		}
		offset += pad4(len(data))
	}

	if headOffset >= 0 && len(f.tables["head"]) >= 12 {
		adj := headAdjustmentMagic - checksum(out)
		binary.BigEndian.PutUint32(out[headOffset+8:], adj)
		binary.BigEndian.PutUint32(f.tables["head"][8:], adj)
	}
	return out
}

// searchParams computes searchRange, entrySelector and rangeShift for a
// binary-searchable array of n entries of the given unit size.
func searchParams(n, unit int) (uint16, uint16, uint16) {
	if n == 0 {
		return 0, 0, 0
	}
	pow, log := 1, 0
	for pow*2 <= n {
		pow *= 2
		log++
	}
	sr := pow * unit
	return uint16(sr), uint16(log), uint16(n*unit - sr)
}

// checksum sums data as big-endian uint32 words, zero-padding the tail.
func checksum(data []byte) uint32 {
	var sum uint32
	i := 0
	for ; i+4 <= len(data); i += 4 {
		sum += binary.BigEndian.Uint32(data[i:])
	}
	if rem := len(data) - i; rem > 0 {
		var last [4]byte
		copy(last[:], data[i:])
		sum += binary.BigEndian.Uint32(last[:])
	}
	return sum
}

// tableChecksum is the checksum recorded for a table. head is summed with
// checkSumAdjustment treated as zero.
func tableChecksum(tag string, data []byte) uint32 {
	if tag == "head" && len(data) >= 12 {
		data = append([]byte(nil), data...)
		binary.BigEndian.PutUint32(data[8:], 0)
	}
	return checksum(data)
}

func pad4(n int) int { return (n + 3) &^ 3 }

// fontRevision returns head.fontRevision split into major and minor parts.
func (f *Font) fontRevision() (uint16, uint16) {
	head := f.tables["head"]
	if len(head) < 8 {
		return 0, 0
	}
	return binary.BigEndian.Uint16(head[4:]), binary.BigEndian.Uint16(head[6:])
}
