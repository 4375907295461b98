//go:build darwin

package awdl

import "errors"

// ErrNativeHookRequired is returned by the stub darwin hook. Actually
// instantiating AWDL requires calling a private Apple framework; that
// call is a named external collaborator (spec §6) and is not implemented
// here — callers on macOS must supply their own PlatformHook.
var ErrNativeHookRequired = errors.New("awdl: native AWDL platform hook not wired; supply one via NewPlatformHook's caller")

type stubHook struct{}

// NewPlatformHook returns a stub hook on darwin. It exists so the package
// compiles and the wiring point is visible; main.go should be given a
// real PlatformHook implementation (e.g. a cgo shim) before a production
// deployment on macOS expects AWDL traffic to flow.
func NewPlatformHook() PlatformHook { return stubHook{} }

func (stubHook) StartAWDL() error { return ErrNativeHookRequired }
func (stubHook) StopAWDL() error  { return nil }
