// Package fontconv converts between font container formats.
//
//   - [ToTTF] rebuilds CFF-flavored OpenType fonts with quadratic TrueType
//     outlines (glyf/loca).
//   - [ToWOFF] wraps an sfnt font in a WOFF 1.0 container, zlib per table.
//   - [ToWOFF2] wraps an sfnt font in a WOFF 2.0 container with null
//     transforms and a single Brotli stream.
//
// Tables are loaded with go-text/typesetting and outlines are read with
// x/image/font/sfnt; everything written here is plain big-endian sfnt
// layout. Font collections and already-wrapped fonts are rejected with
// [ErrUnsupportedFont].
package fontconv
