package encoder

// Priority values fix the probe order for a GPU-equipped host: NVIDIA ->
// AMD -> Intel -> Direct-GPU driver -> generic-libav -> platform-software.
// Platform-software never fails to construct, so it is ordered last: it is
// the guaranteed fallback, not a candidate to race against the others.
// Lower probes first.
const (
	priorityNVIDIA       = 10
	priorityAMD          = 20
	priorityIntel        = 30
	priorityDirectGPU    = 40
	priorityGenericLibav = 50
	priorityPlatformSoft = 60
)
