// Package segmenter computes SMS segment counts per GSM 03.38.
package segmenter

import "unicode/utf16"

const (
	maxGSM7Single    = 160
	maxGSM7Multipart = 153 // 160 minus 7 bytes of UDH
	maxUCS2Single    = 70
	maxUCS2Multipart = 67 // 70 minus 3 UTF-16 code units of UDH
)

// Encoding is the SMS wire encoding required for a body.
type Encoding string

const (
	EncodingGSM7 Encoding = "gsm7"
	EncodingUCS2 Encoding = "ucs2"
)

// Result describes how a message body splits into carrier segments.
type Result struct {
	Encoding   Encoding
	Units      int // septets for GSM-7, UTF-16 code units for UCS-2
	Segments   int
	PerSegment int // capacity of each segment at this segment count
}

// GSM 7-bit default alphabet, basic table.
var gsm7Basic = map[rune]struct{}{}

// Extension table: representable but each costs two septets (ESC + char).
var gsm7Extension = map[rune]struct{}{}

func init() {
	const basic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
		"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"
	for _, r := range basic {
		gsm7Basic[r] = struct{}{}
	}
	for _, r := range "^{}\\[~]|€" {
		gsm7Extension[r] = struct{}{}
	}
}

// IsGSM7 reports whether every rune of s is representable in the GSM
// 7-bit default alphabet (basic or extension table).
func IsGSM7(s string) bool {
	for _, r := range s {
		if _, ok := gsm7Basic[r]; ok {
			continue
		}
		if _, ok := gsm7Extension[r]; ok {
			continue
		}
		return false
	}
	return true
}

// Septets returns the GSM-7 septet count of s. Extension-table characters
// occupy two septets. Callers must have checked IsGSM7 first.
func Septets(s string) int {
	n := 0
	for _, r := range s {
		if _, ok := gsm7Extension[r]; ok {
			n += 2
			continue
		}
		n++
	}
	return n
}

// Split computes the encoding and segment count for a message body.
// A body that fits one segment uses the single-segment capacity; longer
// bodies pay the concatenation UDH overhead on every segment.
func Split(content string) Result {
	if IsGSM7(content) {
		units := Septets(content)
		return split(EncodingGSM7, units, maxGSM7Single, maxGSM7Multipart)
	}
	units := len(utf16.Encode([]rune(content)))
	return split(EncodingUCS2, units, maxUCS2Single, maxUCS2Multipart)
}

func split(enc Encoding, units, single, multipart int) Result {
	if units == 0 {
		return Result{Encoding: enc, Units: 0, Segments: 1, PerSegment: single}
	}
	if units <= single {
		return Result{Encoding: enc, Units: units, Segments: 1, PerSegment: single}
	}
	segments := (units + multipart - 1) / multipart
	return Result{Encoding: enc, Units: units, Segments: segments, PerSegment: multipart}
}
