package fontconv

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// cubicTolerance is the maximum distance, in font units, between a cubic
// segment and its quadratic approximation.
const cubicTolerance = 1.0

// maxQuadsPerCubic bounds the subdivision of one cubic segment.
const maxQuadsPerCubic = 16

// ToTTF converts a CFF-flavored OpenType font to TrueType outlines. Fonts
// that already carry glyf outlines are returned unchanged with converted
// false.
func ToTTF(data []byte) (out []byte, converted bool, err error) {
	f, err := Parse(data)
	if err != nil {
		return nil, false, err
	}
	if !f.HasCFF() {
		if f.Has("glyf") {
			return data, false, nil
		}
		return nil, false, fmt.Errorf("%w: no outline table", ErrUnsupportedFont)
	}
	if f.Has("CFF2") {
		return nil, false, fmt.Errorf("%w: CFF2 outlines", ErrUnsupportedFont)
	}

	src, err := sfnt.Parse(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnsupportedFont, err)
	}
	if err := rebuildOutlines(f, src); err != nil {
		return nil, false, err
	}
	f.Delete("CFF ")
	f.Delete("VORG")
	f.Flavor = flavorTrueType
	return f.Marshal(), true, nil
}

type point struct {
	x, y int
	on   bool
}

type vec struct{ x, y float64 }

func (a vec) add(b vec) vec       { return vec{a.x + b.x, a.y + b.y} }
func (a vec) sub(b vec) vec       { return vec{a.x - b.x, a.y - b.y} }
func (a vec) mul(k float64) vec   { return vec{a.x * k, a.y * k} }
func (a vec) point(on bool) point { return point{int(math.Round(a.x)), int(math.Round(a.y)), on} }

// glyph is a simple TrueType glyph in font units, y up.
type glyph struct {
	contours               [][]point
	xMin, yMin, xMax, yMax int
}

func (g *glyph) empty() bool { return len(g.contours) == 0 }

func (g *glyph) numPoints() int {
	n := 0
	for _, c := range g.contours {
		n += len(c)
	}
	return n
}

// rebuildOutlines replaces the outline tables of f with glyf/loca built from
// src and updates head, maxp, post, hhea and hmtx to match.
func rebuildOutlines(f *Font, src *sfnt.Font) error {
	head := append([]byte(nil), f.Table("head")...)
	if len(head) < 54 {
		return fmt.Errorf("%w: head table too short", ErrUnsupportedFont)
	}

	n := src.NumGlyphs()
	ppem := fixed.I(int(src.UnitsPerEm()))
	var buf sfnt.Buffer
	glyphs := make([]glyph, n)
	for i := range glyphs {
		segs, err := src.LoadGlyph(&buf, sfnt.GlyphIndex(i), ppem, nil)
		if err != nil {
			return fmt.Errorf("load glyph %d: %w", i, err)
		}
		glyphs[i] = buildGlyph(segs)
	}

	glyf, loca, err := encodeGlyphs(glyphs)
	if err != nil {
		return err
	}

	maxPoints, maxContours := 0, 0
	first := true
	var xMin, yMin, xMax, yMax int
	for i := range glyphs {
		g := &glyphs[i]
		if g.empty() {
			continue
		}
		maxPoints = max(maxPoints, g.numPoints())
		maxContours = max(maxContours, len(g.contours))
		if first {
			xMin, yMin, xMax, yMax = g.xMin, g.yMin, g.xMax, g.yMax
			first = false
			continue
		}
		xMin, yMin = min(xMin, g.xMin), min(yMin, g.yMin)
		xMax, yMax = max(xMax, g.xMax), max(yMax, g.yMax)
	}

	putInt16(head[36:], xMin)
	putInt16(head[38:], yMin)
	putInt16(head[40:], xMax)
	putInt16(head[42:], yMax)
	putInt16(head[50:], 1) // indexToLocFormat: long offsets
	putInt16(head[52:], 0) // glyphDataFormat

	f.Set("head", head)
	f.Set("glyf", glyf)
	f.Set("loca", loca)
	f.Set("maxp", maxpV1(n, maxPoints, maxContours))
	f.Set("post", postV3(f.Table("post")))
	updateMetrics(f, glyphs)
	return nil
}

// buildGlyph converts outline segments (26.6, y down) to TrueType contours.
func buildGlyph(segs sfnt.Segments) glyph {
	var g glyph
	var cur []point
	var pen vec

	flush := func() {
		if c := closeContour(cur); len(c) >= 2 {
			g.contours = append(g.contours, c)
		}
		cur = nil
	}
	for _, s := range segs {
		switch s.Op {
		case sfnt.SegmentOpMoveTo:
			flush()
			pen = fromFixed(s.Args[0])
			cur = append(cur, pen.point(true))
		case sfnt.SegmentOpLineTo:
			pen = fromFixed(s.Args[0])
			cur = append(cur, pen.point(true))
		case sfnt.SegmentOpQuadTo:
			ctrl := fromFixed(s.Args[0])
			pen = fromFixed(s.Args[1])
			cur = append(cur, ctrl.point(false), pen.point(true))
		case sfnt.SegmentOpCubeTo:
			end := fromFixed(s.Args[2])
			cur = appendCubic(cur, pen, fromFixed(s.Args[0]), fromFixed(s.Args[1]), end)
			pen = end
		}
	}
	flush()

	for ci, c := range g.contours {
		for pi, p := range c {
			if ci == 0 && pi == 0 {
				g.xMin, g.xMax, g.yMin, g.yMax = p.x, p.x, p.y, p.y
				continue
			}
			g.xMin, g.xMax = min(g.xMin, p.x), max(g.xMax, p.x)
			g.yMin, g.yMax = min(g.yMin, p.y), max(g.yMax, p.y)
		}
	}
	return g
}

func fromFixed(p fixed.Point26_6) vec {
	return vec{float64(p.X) / 64, -float64(p.Y) / 64}
}

// appendCubic approximates the cubic p0-c1-c2-p3 with quadratic segments and
// appends their control and end points.
func appendCubic(pts []point, p0, c1, c2, p3 vec) []point {
	d := p3.sub(c2.mul(3)).add(c1.mul(3)).sub(p0)
	errMid := math.Sqrt(3) / 36 * math.Hypot(d.x, d.y)
	n := int(math.Ceil(math.Cbrt(errMid / cubicTolerance)))
	n = max(1, min(n, maxQuadsPerCubic))

	at := func(t float64) vec {
		u := 1 - t
		return p0.mul(u * u * u).add(c1.mul(3 * u * u * t)).add(c2.mul(3 * u * t * t)).add(p3.mul(t * t * t))
	}
	deriv := func(t float64) vec {
		u := 1 - t
		return c1.sub(p0).mul(3 * u * u).add(c2.sub(c1).mul(6 * u * t)).add(p3.sub(c2).mul(3 * t * t))
	}

	for i := 0; i < n; i++ {
		t0, t1 := float64(i)/float64(n), float64(i+1)/float64(n)
		h := (t1 - t0) / 3
		q0, q3 := at(t0), at(t1)
		if i == n-1 {
			q3 = p3
		}
		q1 := q0.add(deriv(t0).mul(h))
		q2 := q3.sub(deriv(t1).mul(h))
		ctrl := q1.add(q2).mul(3).sub(q0.add(q3)).mul(0.25)
		pts = append(pts, ctrl.point(false), q3.point(true))
	}
	return pts
}

// closeContour removes repeated on-curve points and the closing duplicate of
// the start point, then reverses the winding to TrueType's clockwise outer
// contours while keeping the first point first.
func closeContour(pts []point) []point {
	if len(pts) == 0 {
		return nil
	}
	out := make([]point, 0, len(pts))
	for _, p := range pts {
		if k := len(out); k > 0 && p.on && out[k-1] == p {
			continue
		}
		out = append(out, p)
	}
	if k := len(out); k > 1 && out[k-1] == out[0] {
		out = out[:k-1]
	}
	for i, j := 1, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// encodeGlyphs serializes glyphs into glyf and a long-format loca.
func encodeGlyphs(glyphs []glyph) (glyf, loca []byte, err error) {
	loca = make([]byte, 4*(len(glyphs)+1))
	for i := range glyphs {
		binary.BigEndian.PutUint32(loca[4*i:], uint32(len(glyf)))
		data, err := encodeGlyph(&glyphs[i])
		if err != nil {
			return nil, nil, fmt.Errorf("glyph %d: %w", i, err)
		}
		glyf = append(glyf, data...)
		for len(glyf)%4 != 0 {
			glyf = append(glyf, 0)
		}
	}
	binary.BigEndian.PutUint32(loca[4*len(glyphs):], uint32(len(glyf)))
	return glyf, loca, nil
}

// Simple glyph flag bits.
const (
	flagOnCurve = 0x01
	flagXShort  = 0x02
	flagYShort  = 0x04
	flagRepeat  = 0x08
	flagXSame   = 0x10 // or positive short x
	flagYSame   = 0x20 // or positive short y
)

// encodeGlyph writes one simple glyph without instructions. Empty glyphs
// encode to zero bytes.
func encodeGlyph(g *glyph) ([]byte, error) {
	if g.empty() {
		return nil, nil
	}
	for _, v := range []int{g.xMin, g.yMin, g.xMax, g.yMax} {
		if v < math.MinInt16 || v > math.MaxInt16 {
			return nil, fmt.Errorf("coordinate %d out of range", v)
		}
	}

	b := make([]byte, 10, 10+2*len(g.contours)+2+5*g.numPoints())
	putInt16(b[0:], len(g.contours))
	putInt16(b[2:], g.xMin)
	putInt16(b[4:], g.yMin)
	putInt16(b[6:], g.xMax)
	putInt16(b[8:], g.yMax)

	end := -1
	for _, c := range g.contours {
		end += len(c)
		b = binary.BigEndian.AppendUint16(b, uint16(end))
	}
	b = binary.BigEndian.AppendUint16(b, 0) // instructionLength

	var flags []byte
	var xs, ys []byte
	px, py := 0, 0
	for _, c := range g.contours {
		for _, p := range c {
			var fl byte
			if p.on {
				fl |= flagOnCurve
			}
			fl, xs = encodeDelta(fl, xs, p.x-px, flagXShort, flagXSame)
			fl, ys = encodeDelta(fl, ys, p.y-py, flagYShort, flagYSame)
			flags = append(flags, fl)
			px, py = p.x, p.y
		}
	}

	b = append(b, packFlags(flags)...)
	b = append(b, xs...)
	return append(b, ys...), nil
}

func encodeDelta(fl byte, dst []byte, d int, short, same byte) (byte, []byte) {
	switch {
	case d == 0:
		return fl | same, dst
	case d > -256 && d < 256:
		fl |= short
		if d > 0 {
			fl |= same
		} else {
			d = -d
		}
		return fl, append(dst, byte(d))
	default:
		return fl, binary.BigEndian.AppendUint16(dst, uint16(int16(d)))
	}
}

// packFlags run-length encodes identical consecutive flags with the repeat bit.
func packFlags(flags []byte) []byte {
	out := make([]byte, 0, len(flags))
	for i := 0; i < len(flags); {
		j := i + 1
		for j < len(flags) && flags[j] == flags[i] && j-i <= 255 {
			j++
		}
		if run := j - i; run > 1 {
			out = append(out, flags[i]|flagRepeat, byte(run-1))
		} else {
			out = append(out, flags[i])
		}
		i = j
	}
	return out
}

// maxpV1 builds a version 1.0 maxp table for unhinted simple glyphs.
func maxpV1(numGlyphs, maxPoints, maxContours int) []byte {
	b := make([]byte, 32)
	binary.BigEndian.PutUint32(b[0:], 0x00010000)
	binary.BigEndian.PutUint16(b[4:], uint16(numGlyphs))
	binary.BigEndian.PutUint16(b[6:], uint16(maxPoints))
	binary.BigEndian.PutUint16(b[8:], uint16(maxContours))
	binary.BigEndian.PutUint16(b[14:], 2) // maxZones
	return b
}

// postV3 keeps the metrics header of an existing post table and drops glyph
// names.
func postV3(old []byte) []byte {
	b := make([]byte, 32)
	copy(b, old)
	binary.BigEndian.PutUint32(b[0:], 0x00030000)
	return b
}

// updateMetrics rewrites left side bearings in hmtx to each glyph's xMin
// and refreshes the hhea extremes derived from them.
func updateMetrics(f *Font, glyphs []glyph) {
	hhea := append([]byte(nil), f.Table("hhea")...)
	hmtx := append([]byte(nil), f.Table("hmtx")...)
	if len(hhea) < 36 || len(hmtx) < 4 {
		return
	}
	numH := int(binary.BigEndian.Uint16(hhea[34:]))
	if numH == 0 || len(hmtx) < 4*numH {
		return
	}

	advance := func(i int) int {
		return int(binary.BigEndian.Uint16(hmtx[4*min(i, numH-1):]))
	}

	first := true
	var minLSB, minRSB, maxExtent int
	for i := range glyphs {
		off := 4*i + 2
		if i >= numH {
			off = 4*numH + 2*(i-numH)
		}
		if off+2 > len(hmtx) {
			break
		}
		g := &glyphs[i]
		lsb := 0
		if !g.empty() {
			lsb = g.xMin
		}
		putInt16(hmtx[off:], lsb)
		if g.empty() {
			continue
		}
		rsb := advance(i) - g.xMax
		extent := g.xMax
		if first {
			minLSB, minRSB, maxExtent = lsb, rsb, extent
			first = false
			continue
		}
		minLSB, minRSB, maxExtent = min(minLSB, lsb), min(minRSB, rsb), max(maxExtent, extent)
	}

	putInt16(hhea[12:], minLSB)
	putInt16(hhea[14:], minRSB)
	putInt16(hhea[16:], maxExtent)
	f.Set("hhea", hhea)
	f.Set("hmtx", hmtx)
}

func putInt16(b []byte, v int) {
	binary.BigEndian.PutUint16(b, uint16(int16(v)))
}
