package server

import (
	"unicode"
	"unicode/utf8"
)

// maxEmojiLength bounds a reaction token in code points. Composed emoji
// (skin tones, ZWJ sequences, flags) stay well under this.
const maxEmojiLength = 8

// emojiRanges is the allowlist of code points a reaction token may
// contain: emoticons, pictographs, transport and map symbols,
// supplemental symbols, dingbats, variation selectors, zero-width
// joiners, regional indicators, skin tone modifiers and tag characters.
// The token is echoed verbatim to other clients' rendering surfaces, so
// anything outside these ranges is rejected.
var emojiRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200B, Hi: 0x200D, Stride: 1}, // zero-width chars, incl. joiner
		{Lo: 0x2300, Hi: 0x23FF, Stride: 1}, // misc technical
		{Lo: 0x2600, Hi: 0x26FF, Stride: 1}, // misc symbols
		{Lo: 0x2702, Hi: 0x27B0, Stride: 1}, // dingbats
		{Lo: 0xFE0F, Hi: 0xFE0F, Stride: 1}, // variation selector-16
	},
	R32: []unicode.Range32{
		{Lo: 0x1F1E6, Hi: 0x1F1FF, Stride: 1}, // regional indicators (flags)
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1}, // misc symbols & pictographs, skin tones
		{Lo: 0x1F600, Hi: 0x1F64F, Stride: 1}, // emoticons
		{Lo: 0x1F680, Hi: 0x1F6FF, Stride: 1}, // transport & map
		{Lo: 0x1F900, Hi: 0x1F9FF, Stride: 1}, // supplemental symbols
		{Lo: 0x1FA00, Hi: 0x1FA6F, Stride: 1}, // chess symbols
		{Lo: 0x1FA70, Hi: 0x1FAFF, Stride: 1}, // symbols extended-A
		{Lo: 0xE0020, Hi: 0xE007F, Stride: 1}, // tags (flag subdivisions)
	},
}

// ValidEmoji reports whether the token is entirely composed of
// allowlisted emoji code points and no longer than maxEmojiLength.
func ValidEmoji(token string) bool {
	if token == "" || utf8.RuneCountInString(token) > maxEmojiLength {
		return false
	}

	for _, r := range token {
		if !unicode.Is(emojiRanges, r) {
			return false
		}
	}

	return true
}
