package model

// Standard fact keys populated by the collector.
const (
	FactOS       = "os"
	FactOSFamily = "os_family"
	FactArch     = "arch"
	FactKernel   = "kernel"
	FactHostname = "hostname"
)

// Facts holds key-value information discovered about a host at the start of
// its run. Read-only for the remainder of that run.
type Facts map[string]string

// Get returns the fact value for key, or "" when absent.
func (f Facts) Get(key string) string {
	if f == nil {
		return ""
	}
	return f[key]
}

// Has reports whether the fact is present.
func (f Facts) Has(key string) bool {
	if f == nil {
		return false
	}
	_, ok := f[key]
	return ok
}

// Clone returns an independent copy so callers cannot mutate a host's
// gathered facts mid-run.
func (f Facts) Clone() Facts {
	if f == nil {
		return nil
	}
	out := make(Facts, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
