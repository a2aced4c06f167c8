package encoder

import "testing"

func buildAnnexB(nals ...[]byte) []byte {
	var out []byte
	for _, n := range nals {
		out = AppendStartCodeNAL(out, n)
	}
	return out
}

func nalHeader(nalType int) []byte {
	// byte0: forbidden_zero_bit(1)=0 | nal_unit_type(6) | layer_id_msb(1)
	b0 := byte(nalType<<1) & 0x7E
	return []byte{b0, 0x01, 0xAA, 0xBB}
}

func TestBeginsWithStartCode(t *testing.T) {
	data := buildAnnexB(nalHeader(NALTypeIDRW))
	if !BeginsWithStartCode(data) {
		t.Fatalf("expected start code at head of stream")
	}
	if BeginsWithStartCode([]byte{0, 0, 1}) {
		t.Fatalf("3-byte start code must not satisfy the 4-byte invariant")
	}
}

func TestHasParameterSetsBeforeIDR(t *testing.T) {
	data := buildAnnexB(nalHeader(NALTypeVPS), nalHeader(NALTypeSPS), nalHeader(NALTypePPS), nalHeader(NALTypeIDRW))
	if !HasParameterSetsBeforeIDR(data) {
		t.Fatalf("expected VPS/SPS/PPS before IDR to satisfy the keyframe invariant")
	}
}

func TestHasParameterSetsBeforeIDRMissingPPS(t *testing.T) {
	data := buildAnnexB(nalHeader(NALTypeVPS), nalHeader(NALTypeSPS), nalHeader(NALTypeIDRW))
	if HasParameterSetsBeforeIDR(data) {
		t.Fatalf("missing PPS must fail the keyframe invariant")
	}
}

func TestFirstNALType(t *testing.T) {
	data := buildAnnexB(nalHeader(NALTypeVPS), nalHeader(NALTypeIDRN))
	if got := FirstNALType(data); got != NALTypeVPS {
		t.Fatalf("expected first NAL type VPS(32), got %d", got)
	}
	if got := FirstNALType(nil); got != -1 {
		t.Fatalf("expected -1 for empty stream, got %d", got)
	}
}

func TestIterateAnnexBNALUsCountsAllUnits(t *testing.T) {
	data := buildAnnexB(nalHeader(NALTypeVPS), nalHeader(NALTypeSPS), nalHeader(NALTypePPS), nalHeader(NALTypeIDRW))
	var types []int
	IterateAnnexBNALUs(data, func(nalType int, start, end int) bool {
		types = append(types, nalType)
		if end <= start {
			t.Fatalf("NAL unit range must be non-empty: start=%d end=%d", start, end)
		}
		return true
	})
	want := []int{NALTypeVPS, NALTypeSPS, NALTypePPS, NALTypeIDRW}
	if len(types) != len(want) {
		t.Fatalf("expected %d NAL units, got %d (%v)", len(want), len(types), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("NAL %d: want type %d got %d", i, want[i], types[i])
		}
	}
}

func TestLengthPrefixedToAnnexB(t *testing.T) {
	unit := nalHeader(NALTypeIDRW)
	var lp []byte
	lp = append(lp, 0, 0, 0, byte(len(unit)))
	lp = append(lp, unit...)

	annexB := lengthPrefixedToAnnexB(lp)
	if !BeginsWithStartCode(annexB) {
		t.Fatalf("expected conversion to begin with Annex-B start code")
	}
	if got := FirstNALType(annexB); got != NALTypeIDRW {
		t.Fatalf("expected IDR type preserved through conversion, got %d", got)
	}
}
