// Package encoder implements the polymorphic HEVC VideoEncoder contract
// Annex-B framing, all-intra/zero-latency tuning, parameter-set
// prepending, and a priority-ordered backend factory.
package encoder

import "encoding/binary"

// NAL unit type field values (HEVC, ITU-T H.265 Table 7-1). Only the
// parameter-set and slice types the contract cares about are named;
// everything else is opaque payload to this package.
const (
	NALTypeVPS    = 32
	NALTypeSPS    = 33
	NALTypePPS    = 34
	NALTypeIDRW   = 19 // IDR_W_RADL
	NALTypeIDRN   = 20 // IDR_N_LP
)

// startCode4 is the 4-byte Annex-B start code this contract mandates
// Backends that natively emit length-prefixed units must convert
// in-place before delivery.
var startCode4 = [4]byte{0x00, 0x00, 0x00, 0x01}

// nalUnitType extracts the NAL unit type from an HEVC NAL header. The
// header is two bytes; the type occupies bits 1-6 of the first byte
// (forbidden_zero_bit | nal_unit_type(6) | nuh_layer_id(6) | nuh_temporal_id_plus1(3)).
func nalUnitType(headerByte0 byte) int {
	return int(headerByte0>>1) & 0x3F
}

// AppendStartCodeNAL appends a 4-byte-start-code-prefixed NAL unit (header +
// payload) to dst and returns the extended slice.
func AppendStartCodeNAL(dst []byte, nalHeaderAndPayload []byte) []byte {
	dst = append(dst, startCode4[:]...)
	return append(dst, nalHeaderAndPayload...)
}

// IterateAnnexBNALUs walks an Annex-B byte stream (3- or 4-byte start
// codes) and calls fn with each NAL unit's first header byte and the NAL
// unit's byte range [start,end) (payload after the start code, up to but
// not including the next start code or end of buffer). Stops early if fn
// returns false.
func IterateAnnexBNALUs(data []byte, fn func(nalType int, start, end int) bool) {
	n := len(data)
	i := 0
	for i < n-2 {
		scLen := startCodeLenAt(data, i)
		if scLen == 0 {
			i++
			continue
		}
		nalStart := i + scLen
		if nalStart >= n {
			break
		}
		nalType := nalUnitType(data[nalStart])

		// Find the next start code to bound this NAL unit.
		next := n
		for j := nalStart + 1; j < n-2; j++ {
			if l := startCodeLenAt(data, j); l != 0 {
				next = j
				break
			}
		}
		if !fn(nalType, nalStart, next) {
			return
		}
		i = next
	}
}

// startCodeLenAt returns 3 or 4 if data[i:] begins with an Annex-B start
// code, else 0.
func startCodeLenAt(data []byte, i int) int {
	if i+4 <= len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 0 && data[i+3] == 1 {
		return 4
	}
	if i+3 <= len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
		return 3
	}
	return 0
}

// BeginsWithStartCode reports whether data begins with the mandatory
// 00 00 00 01 four-byte start code.
func BeginsWithStartCode(data []byte) bool {
	return len(data) >= 4 && data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1
}

// HasParameterSetsBeforeIDR reports whether data contains at least one NAL
// unit each of type VPS(32), SPS(33), PPS(34) before the first IDR slice
// (19 or 20) — the keyframe invariant every backend must uphold.
func HasParameterSetsBeforeIDR(data []byte) bool {
	var sawVPS, sawSPS, sawPPS bool
	ok := false
	IterateAnnexBNALUs(data, func(nalType int, start, end int) bool {
		switch nalType {
		case NALTypeVPS:
			sawVPS = true
		case NALTypeSPS:
			sawSPS = true
		case NALTypePPS:
			sawPPS = true
		case NALTypeIDRW, NALTypeIDRN:
			ok = sawVPS && sawSPS && sawPPS
			return false
		}
		return true
	})
	return ok
}

// FirstNALType returns the NAL unit type of the first NAL unit in data, or
// -1 if data contains no start-code-prefixed NAL unit.
func FirstNALType(data []byte) int {
	result := -1
	IterateAnnexBNALUs(data, func(nalType int, start, end int) bool {
		result = nalType
		return false
	})
	return result
}

// lengthPrefixedToAnnexB converts a stream of 4-byte-big-endian-length-
// prefixed NAL units (the framing some SDKs emit natively) into Annex-B.
// No backend in this package calls it yet; only its unit test does.
func lengthPrefixedToAnnexB(src []byte) []byte {
	dst := make([]byte, 0, len(src)+len(src)/8+16)
	i := 0
	for i+4 <= len(src) {
		l := int(binary.BigEndian.Uint32(src[i : i+4]))
		i += 4
		if l <= 0 || i+l > len(src) {
			break
		}
		dst = AppendStartCodeNAL(dst, src[i:i+l])
		i += l
	}
	return dst
}
