package team

// placement returns the CPU each of n workers is pinned to, or nil when
// bind is ProcBindNone or no CPUs are known.
//
// Close packs workers onto consecutive CPUs, wrapping around when there are
// more workers than CPUs. Spread partitions the CPU list into n equal
// places and puts worker i at the start of place i.
func placement(bind ProcBind, n int, cpus []int) []int {
	if bind == ProcBindNone || len(cpus) == 0 || n <= 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		switch bind {
		case ProcBindSpread:
			if n <= len(cpus) {
				out[i] = cpus[i*len(cpus)/n]
			} else {
				out[i] = cpus[i%len(cpus)]
			}
		default:
			out[i] = cpus[i%len(cpus)]
		}
	}
	return out
}
