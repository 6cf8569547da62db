package fontconv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	woffSignature uint32 = 0x774F4646 // 'wOFF'
	woffHeaderLen        = 44
	woffEntryLen         = 20
)

// ToWOFF converts an sfnt font to WOFF 1.0. Tables are stored in tag order,
// each zlib-compressed only when that makes it smaller.
func ToWOFF(data []byte) ([]byte, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return EncodeWOFF(f)
}

// EncodeWOFF serializes f as WOFF 1.0.
func EncodeWOFF(f *Font) ([]byte, error) {
	sfntSize := len(f.Marshal()) // also fixes head.checkSumAdjustment
	tags := f.Tags()
	n := len(tags)

	type entry struct {
		stored   []byte
		origLen  int
		checksum uint32
	}
	entries := make([]entry, n)
	for i, t := range tags {
		orig := f.Table(t)
		stored, err := deflate(orig)
		if err != nil {
			return nil, fmt.Errorf("compress %s: %w", t, err)
		}
		if len(stored) >= len(orig) {
			stored = orig
		}
		entries[i] = entry{stored: stored, origLen: len(orig), checksum: tableChecksum(t, orig)}
	}

	total := woffHeaderLen + woffEntryLen*n
	for _, e := range entries {
		total += pad4(len(e.stored))
	}
	out := make([]byte, total)

	major, minor := f.fontRevision()
	binary.BigEndian.PutUint32(out[0:], woffSignature)
	binary.BigEndian.PutUint32(out[4:], f.Flavor)
	binary.BigEndian.PutUint32(out[8:], uint32(total))
	binary.BigEndian.PutUint16(out[12:], uint16(n))
	// reserved, metadata and private blocks stay zero
	binary.BigEndian.PutUint32(out[16:], uint32(sfntSize))
	binary.BigEndian.PutUint16(out[20:], major)
	binary.BigEndian.PutUint16(out[22:], minor)

	offset := woffHeaderLen + woffEntryLen*n
	for i, t := range tags {
		e := entries[i]
		rec := out[woffHeaderLen+woffEntryLen*i:]
		copy(rec[0:4], t)
		binary.BigEndian.PutUint32(rec[4:], uint32(offset))
		binary.BigEndian.PutUint32(rec[8:], uint32(len(e.stored)))
		binary.BigEndian.PutUint32(rec[12:], uint32(e.origLen))
		binary.BigEndian.PutUint32(rec[16:], e.checksum)
		copy(out[offset:], e.stored)
		offset += pad4(len(e.stored))
	}
	return out, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeWOFF unpacks a WOFF 1.0 file into its tables.
func DecodeWOFF(data []byte) (*Font, error) {
	if len(data) < woffHeaderLen || binary.BigEndian.Uint32(data) != woffSignature {
		return nil, fmt.Errorf("%w: not a WOFF file", ErrUnsupportedFont)
	}
	n := int(binary.BigEndian.Uint16(data[12:]))
	if len(data) < woffHeaderLen+woffEntryLen*n {
		return nil, fmt.Errorf("%w: truncated WOFF directory", ErrUnsupportedFont)
	}
	f := &Font{Flavor: binary.BigEndian.Uint32(data[4:]), tables: make(map[string][]byte, n)}
	for i := 0; i < n; i++ {
		rec := data[woffHeaderLen+woffEntryLen*i:]
		tag := string(rec[0:4])
		off := int(binary.BigEndian.Uint32(rec[4:]))
		compLen := int(binary.BigEndian.Uint32(rec[8:]))
		origLen := int(binary.BigEndian.Uint32(rec[12:]))
		if off < 0 || compLen < 0 || off+compLen > len(data) {
			return nil, fmt.Errorf("%w: table %s out of bounds", ErrUnsupportedFont, tag)
		}
		stored := data[off : off+compLen]
		if compLen == origLen {
			f.tables[tag] = append([]byte(nil), stored...)
			continue
		}
		zr, err := zlib.NewReader(bytes.NewReader(stored))
		if err != nil {
			return nil, fmt.Errorf("inflate %s: %w", tag, err)
		}
		raw, err := io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("inflate %s: %w", tag, err)
		}
		if len(raw) != origLen {
			return nil, fmt.Errorf("%w: table %s inflated to %d bytes, want %d", ErrUnsupportedFont, tag, len(raw), origLen)
		}
		f.tables[tag] = raw
	}
	return f, nil
}
