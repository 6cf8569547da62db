// Package naming derives the distribution path of an optimized image from
// its source path.
//
// A source such as "banners/promo-200@2x.png" (relative to the image scan
// root) is split into a head ("promo") and a tail ("-200@2x"): the tail
// starts at the first hyphen followed by a digit, and anything from the
// first "@" onward is a variant marker that always stays at the end. The
// first directory segment ("banners") is the top group. The output is
//
//	<head>/<head>-<group><tail><ext>      e.g. promo/promo-banners-200@2x.png
//
// Every function here is pure. [CollisionResolver] is the only stateful type
// and exists so that two sources planned onto the same output are detected
// before any file is written.
package naming
