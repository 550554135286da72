package book

import "unicode"

// IsCJK reports whether r belongs to a script written without spaces: Han,
// Kana, Hangul, CJK punctuation and the fullwidth forms. Lines may break
// on either side of such a character.
func IsCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		(r >= 0x3000 && r <= 0x303f) || (r >= 0xfe10 && r <= 0xfe4f) || (r >= 0xff00 && r <= 0xffef)
}
