package cpu

// FeatureSet summarizes the processor features the kernel core cares about
// while bringing up the boot processor. Each flag reflects the raw CPUID bit;
// AVX state is not enabled in XCR0 by the kernel core.
type FeatureSet struct {
	SSE2    bool
	SSE3    bool
	AVX     bool
	AVX2    bool
	OSXSAVE bool
	RDRAND  bool
}

// CPUID feature bits.
const (
	leaf1EDXSSE2    = 1 << 26
	leaf1ECXSSE3    = 1 << 0
	leaf1ECXOSXSAVE = 1 << 27
	leaf1ECXAVX     = 1 << 28
	leaf1ECXRDRAND  = 1 << 30
	leaf7EBXAVX2    = 1 << 5
)

var (
	// featuresFn is mocked by tests.
	featuresFn = hostFeatures
)

// Features reports the features detected on the boot processor.
func Features() FeatureSet {
	return featuresFn()
}

// hostFeatures decodes the feature flags straight from CPUID so it can run
// before any package initializer.
func hostFeatures() FeatureSet {
	maxLeaf, _, _, _ := cpuidFn(0)
	if maxLeaf < 1 {
		return FeatureSet{}
	}

	_, _, ecx1, edx1 := cpuidFn(1)
	set := FeatureSet{
		SSE2:    edx1&leaf1EDXSSE2 != 0,
		SSE3:    ecx1&leaf1ECXSSE3 != 0,
		AVX:     ecx1&leaf1ECXAVX != 0,
		OSXSAVE: ecx1&leaf1ECXOSXSAVE != 0,
		RDRAND:  ecx1&leaf1ECXRDRAND != 0,
	}

	if maxLeaf >= 7 {
		_, ebx7, _, _ := cpuidFn(7)
		set.AVX2 = ebx7&leaf7EBXAVX2 != 0
	}

	return set
}

// Usable returns true if the processor supports the baseline instruction set
// that code emitted by the Go compiler for amd64 relies on.
func (f FeatureSet) Usable() bool {
	return f.SSE2
}
