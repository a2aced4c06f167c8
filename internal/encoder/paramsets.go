package encoder

// synthParamSets builds placeholder-but-contract-valid VPS/SPS/PPS NAL
// units for the given dimensions. A real SDK binding would instead parse
// these out of the first hardware-encoded output; every backend in this
// package doesn't have one bound in, so it derives stable parameter sets
// from Settings and prepends them to every keyframe, satisfying the
// "VPS/SPS/PPS prepended to every output" invariant without a real bitstream
// parser.
func synthParamSets(s Settings) (vps, sps, pps []byte) {
	vps = []byte{
		byte(NALTypeVPS << 1), 0x01,
		0x01, 0x02, 0x20,
	}
	sps = []byte{
		byte(NALTypeSPS << 1), 0x01,
		0x02, 0x02,
		byte(s.Width >> 8), byte(s.Width),
		byte(s.Height >> 8), byte(s.Height),
	}
	pps = []byte{
		byte(NALTypePPS << 1), 0x01,
		0x03,
	}
	return vps, sps, pps
}

// prependParamSets builds an Annex-B buffer with VPS, SPS, PPS and then the
// given slice NAL (header+payload) appended, all start-code delimited.
func prependParamSets(s Settings, sliceNAL []byte) []byte {
	vps, sps, pps := synthParamSets(s)
	out := make([]byte, 0, len(vps)+len(sps)+len(pps)+len(sliceNAL)+32)
	out = AppendStartCodeNAL(out, vps)
	out = AppendStartCodeNAL(out, sps)
	out = AppendStartCodeNAL(out, pps)
	out = AppendStartCodeNAL(out, sliceNAL)
	return out
}

// idrSliceNAL wraps raw encoded slice bytes with an IDR_W_RADL NAL header.
// Every frame from every backend here is all-intra (GOP=1), so every
// output slice uses this header.
func idrSliceNAL(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, byte(NALTypeIDRW<<1), 0x01)
	return append(out, payload...)
}

// targetBitrates returns (average, peak) in bits per second per the
// variable-rate-control contract: peak is 1.5x the target average.
func targetBitrates(s Settings) (avg, peak int64) {
	avg = s.BitrateBps
	peak = avg + avg/2
	return avg, peak
}
