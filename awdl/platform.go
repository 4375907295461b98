package awdl

// PlatformHook instantiates (or tears down) the AWDL link layer. On
// macOS the interface exists but carries no peer traffic until something
// calls the native API that brings it up; on shutdown that must be
// reversed. This is a named external collaborator (spec §6/§9) — its
// real implementation is native and out of scope here.
type PlatformHook interface {
	StartAWDL() error
	StopAWDL() error
}
