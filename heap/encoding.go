package heap

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"

	runtimebridge "github.com/wippyai/runtime-bridge"
	"github.com/wippyai/runtime-bridge/errors"
)

// Error policies understood by the heap's codecs.
const (
	PolicyStrict  = "strict"
	PolicyReplace = "replace"
	PolicyIgnore  = "ignore"
)

// DecodeText implements runtimebridge.Runtime. The source must be a byte
// buffer; its bytes are interpreted per the named encoding and policy and
// stored as a fresh text object. Failures install a pending exception and
// return 0.
func (h *Heap) DecodeText(src runtimebridge.Raw, encName, policy string) runtimebridge.Raw {
	e := h.entryOf(src, "decode")
	switch e.typ {
	case TypeIDBytes:
	case TypeIDStr:
		h.pending = errors.Foreign(errors.PhaseRuntime, "TypeError",
			"decoding str is not supported")
		return 0
	default:
		h.pending = errors.Foreign(errors.PhaseRuntime, "TypeError",
			fmt.Sprintf("decoding to str: need a bytes-like object, %s found", h.typeNames[e.typ-1]))
		return 0
	}

	out, ferr := decodeBytes(e.value.([]byte), encName, policy)
	if ferr != nil {
		h.pending = ferr
		return 0
	}
	return h.alloc(TypeIDStr, out)
}

// decodeBytes converts data to UTF-8 per the named encoding and policy.
//
// The UTF families, Latin-1, ASCII and every single-byte charmap ianaindex
// resolves honor all three policies with exact byte offsets on strict
// failures. Remaining encodings decode through their x/text decoder, which
// only substitutes U+FFFD, so they accept the replace policy alone.
func decodeBytes(data []byte, encName, policy string) ([]byte, *errors.Error) {
	if policy == "" {
		policy = PolicyStrict
	}
	switch policy {
	case PolicyStrict, PolicyReplace, PolicyIgnore:
	default:
		return nil, errors.Foreign(errors.PhaseRuntime, "LookupError",
			fmt.Sprintf("unknown error handler name %q", policy))
	}

	switch normalizeEncoding(encName) {
	case "utf-8":
		return decodeUTF8(data, encName, policy)
	case "utf-16":
		return decodeUTF16(data, encName, policy, false, true)
	case "utf-16le":
		return decodeUTF16(data, encName, policy, false, false)
	case "utf-16be":
		return decodeUTF16(data, encName, policy, true, false)
	case "latin-1":
		return decodeLatin1(data), nil
	case "ascii":
		return decodeASCII(data, encName, policy)
	}

	enc, err := ianaindex.IANA.Encoding(normalizeEncoding(encName))
	if err != nil || enc == nil {
		return nil, errors.Foreign(errors.PhaseRuntime, "LookupError",
			fmt.Sprintf("unknown encoding: %s", encName))
	}
	if cm, ok := enc.(*charmap.Charmap); ok {
		return decodeCharmap(data, cm, encName, policy)
	}
	return decodeGeneric(data, enc, encName, policy)
}

// normalizeEncoding folds the spellings the original runtime accepts into
// one canonical form per encoding.
func normalizeEncoding(name string) string {
	s := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	switch s {
	case "utf8":
		return "utf-8"
	case "utf16":
		return "utf-16"
	case "utf-16-le", "utf16le":
		return "utf-16le"
	case "utf-16-be", "utf16be":
		return "utf-16be"
	case "latin1", "iso-8859-1", "iso8859-1", "l1", "cp819":
		return "latin-1"
	case "us-ascii", "646":
		return "ascii"
	}
	return s
}

// codecError builds the strict-policy failure for one undecodable span.
// For the other policies it returns nil and the caller substitutes or skips.
func codecError(encName, policy string, span []byte, offset int, reason string) *errors.Error {
	if policy != PolicyStrict {
		return nil
	}
	b := errors.New(errors.PhaseRuntime, errors.KindForeign).
		Category("UnicodeDecodeError").
		Offset(offset).
		Data(span)
	if len(span) == 1 {
		b.Detail("%s codec can't decode byte %#02x in position %d: %s", encName, span[0], offset, reason)
	} else {
		b.Detail("%s codec can't decode bytes in position %d: %s", encName, offset, reason)
	}
	return b.Build()
}

// decodeUTF8 validates data as UTF-8. Replace substitutes one U+FFFD per
// maximal ill-formed subsequence; ignore drops the same span. Strict
// reports the span's first byte and offset.
func decodeUTF8(data []byte, encName, policy string) ([]byte, *errors.Error) {
	if utf8.Valid(data) {
		return append([]byte(nil), data...), nil
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			reason := "invalid continuation byte"
			if b := data[i]; b&0xc0 == 0x80 || b == 0xc0 || b == 0xc1 || b >= 0xf5 {
				reason = "invalid start byte"
			}
			if ferr := codecError(encName, policy, data[i:i+1], i, reason); ferr != nil {
				return nil, ferr
			}
			if policy == PolicyReplace {
				out = utf8.AppendRune(out, utf8.RuneError)
			}
			i += invalidLen(data, i)
			continue
		}
		out = append(out, data[i:i+size]...)
		i += size
	}
	return out, nil
}

// invalidLen reports the length of the maximal ill-formed UTF-8
// subsequence starting at i: a truncated multi-byte prefix is one span,
// a stray continuation byte its own. The caller guarantees data[i:] does
// not begin a well-formed sequence.
func invalidLen(data []byte, i int) int {
	var want int    // continuation bytes after the lead
	var lo, hi byte // accepted range for the first continuation
	switch b0 := data[i]; {
	case b0 >= 0xc2 && b0 <= 0xdf:
		want, lo, hi = 1, 0x80, 0xbf
	case b0 == 0xe0:
		want, lo, hi = 2, 0xa0, 0xbf
	case b0 >= 0xe1 && b0 <= 0xec:
		want, lo, hi = 2, 0x80, 0xbf
	case b0 == 0xed:
		// The surrogate half-range never continues.
		want, lo, hi = 2, 0x80, 0x9f
	case b0 >= 0xee && b0 <= 0xef:
		want, lo, hi = 2, 0x80, 0xbf
	case b0 == 0xf0:
		want, lo, hi = 3, 0x90, 0xbf
	case b0 >= 0xf1 && b0 <= 0xf3:
		want, lo, hi = 3, 0x80, 0xbf
	case b0 == 0xf4:
		want, lo, hi = 3, 0x80, 0x8f
	default:
		// Stray continuation byte, or a byte no sequence starts with.
		return 1
	}
	n := 1
	for n <= want {
		if i+n >= len(data) {
			return n
		}
		b := data[i+n]
		if n > 1 {
			lo, hi = 0x80, 0xbf
		}
		if b < lo || b > hi {
			return n
		}
		n++
	}
	return n
}

func decodeUTF16(data []byte, encName, policy string, bigEndian, useBOM bool) ([]byte, *errors.Error) {
	i := 0
	if useBOM && len(data) >= 2 {
		switch {
		case data[0] == 0xfe && data[1] == 0xff:
			bigEndian = true
			i = 2
		case data[0] == 0xff && data[1] == 0xfe:
			bigEndian = false
			i = 2
		}
	}

	unit := func(off int) uint16 {
		if bigEndian {
			return binary.BigEndian.Uint16(data[off:])
		}
		return binary.LittleEndian.Uint16(data[off:])
	}

	out := make([]byte, 0, len(data))
	for i < len(data) {
		if i+1 >= len(data) {
			if ferr := codecError(encName, policy, data[i:], i, "truncated data"); ferr != nil {
				return nil, ferr
			}
			if policy == PolicyReplace {
				out = utf8.AppendRune(out, utf8.RuneError)
			}
			break
		}

		u := unit(i)
		switch {
		case u >= 0xd800 && u < 0xdc00:
			if i+3 < len(data) {
				if u2 := unit(i + 2); u2 >= 0xdc00 && u2 < 0xe000 {
					out = utf8.AppendRune(out, utf16.DecodeRune(rune(u), rune(u2)))
					i += 4
					continue
				}
			}
			if ferr := codecError(encName, policy, data[i:i+2], i, "unpaired high surrogate"); ferr != nil {
				return nil, ferr
			}
			if policy == PolicyReplace {
				out = utf8.AppendRune(out, utf8.RuneError)
			}
			i += 2
		case u >= 0xdc00 && u < 0xe000:
			if ferr := codecError(encName, policy, data[i:i+2], i, "unpaired low surrogate"); ferr != nil {
				return nil, ferr
			}
			if policy == PolicyReplace {
				out = utf8.AppendRune(out, utf8.RuneError)
			}
			i += 2
		default:
			out = utf8.AppendRune(out, rune(u))
			i += 2
		}
	}
	return out, nil
}

// decodeLatin1 never fails: all 256 byte values map directly to the first
// 256 code points.
func decodeLatin1(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		out = utf8.AppendRune(out, rune(b))
	}
	return out
}

func decodeASCII(data []byte, encName, policy string) ([]byte, *errors.Error) {
	out := make([]byte, 0, len(data))
	for i, b := range data {
		if b < 0x80 {
			out = append(out, b)
			continue
		}
		if ferr := codecError(encName, policy, data[i:i+1], i, "ordinal not in range(128)"); ferr != nil {
			return nil, ferr
		}
		if policy == PolicyReplace {
			out = utf8.AppendRune(out, utf8.RuneError)
		}
	}
	return out, nil
}

func decodeCharmap(data []byte, cm *charmap.Charmap, encName, policy string) ([]byte, *errors.Error) {
	out := make([]byte, 0, len(data))
	for i, b := range data {
		r := cm.DecodeByte(b)
		// No single-byte charset contains U+FFFD, so its appearance marks
		// an unmapped byte.
		if r == utf8.RuneError {
			if ferr := codecError(encName, policy, data[i:i+1], i, "character maps to <undefined>"); ferr != nil {
				return nil, ferr
			}
			if policy == PolicyReplace {
				out = utf8.AppendRune(out, utf8.RuneError)
			}
			continue
		}
		out = utf8.AppendRune(out, r)
	}
	return out, nil
}

func decodeGeneric(data []byte, enc encoding.Encoding, encName, policy string) ([]byte, *errors.Error) {
	if policy != PolicyReplace {
		return nil, errors.Foreign(errors.PhaseRuntime, "LookupError",
			fmt.Sprintf("error handler %q is not registered for encoding %s", policy, encName))
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, errors.Foreign(errors.PhaseRuntime, "UnicodeDecodeError", err.Error())
	}
	return out, nil
}
