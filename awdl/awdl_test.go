package awdl

import (
	"net"
	"testing"
)

func TestEligible(t *testing.T) {
	tests := []struct {
		name  string
		flags net.Flags
		want  bool
	}{
		{"up+multicast", net.FlagUp | net.FlagMulticast, true},
		{"down", net.FlagMulticast, false},
		{"loopback", net.FlagUp | net.FlagMulticast | net.FlagLoopback, false},
		{"point-to-point", net.FlagUp | net.FlagMulticast | net.FlagPointToPoint, false},
		{"no multicast", net.FlagUp, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iface := net.Interface{Name: "eth0", Flags: tt.flags}
			if got := eligible(iface); got != tt.want {
				t.Errorf("eligible(%v) = %v, want %v", tt.flags, got, tt.want)
			}
		})
	}
}

func TestHasAWDL(t *testing.T) {
	ifaces := []net.Interface{{Name: "en0"}, {Name: "awdl0"}}
	if !HasAWDL(ifaces) {
		t.Error("HasAWDL() = false, want true")
	}
	if HasAWDL([]net.Interface{{Name: "en0"}}) {
		t.Error("HasAWDL() = true without awdl0 present")
	}
}

func TestSelectInterfacesRuns(t *testing.T) {
	// Exercises the real net.Interfaces() call; the sandbox's actual
	// interface set varies, so this only checks SelectInterfaces doesn't
	// error and every returned interface passes eligible().
	selected, err := SelectInterfaces()
	if err != nil {
		t.Fatalf("SelectInterfaces() error = %v", err)
	}
	for _, iface := range selected {
		if !eligible(iface) {
			t.Errorf("SelectInterfaces() returned ineligible interface %q", iface.Name)
		}
	}
}
