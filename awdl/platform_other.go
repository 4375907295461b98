//go:build !darwin

package awdl

// noopHook satisfies PlatformHook on platforms with no AWDL concept.
type noopHook struct{}

// NewPlatformHook returns a no-op hook on non-macOS builds so the rest of
// the bridge compiles and runs unchanged; it simply never sees awdl0.
func NewPlatformHook() PlatformHook { return noopHook{} }

func (noopHook) StartAWDL() error { return nil }
func (noopHook) StopAWDL() error  { return nil }
