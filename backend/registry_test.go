// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"testing"

	"github.com/gogpu/splat/gpucore"
)

// stubAdapter is a GPUAdapter that only knows its name.
type stubAdapter struct {
	gpucore.GPUAdapter
	name string
}

func withRegistry(t *testing.T, fs map[string]Factory) {
	t.Helper()
	registryMu.Lock()
	saved := factories
	factories = fs
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		factories = saved
		registryMu.Unlock()
	})
}

func stub(name string) Factory {
	return func() (gpucore.GPUAdapter, error) { return stubAdapter{name: name}, nil }
}

func failing(name string) Factory {
	return func() (gpucore.GPUAdapter, error) { return nil, errors.New(name + " failed") }
}

func TestRegisterAndOpen(t *testing.T) {
	withRegistry(t, map[string]Factory{})

	Register(Software, stub(Software))
	if !IsRegistered(Software) {
		t.Fatal("IsRegistered(software) = false after Register")
	}
	a, err := Open(Software)
	if err != nil {
		t.Fatalf("Open(software) error = %v", err)
	}
	if got := a.(stubAdapter).name; got != Software {
		t.Errorf("Open(software) returned %q", got)
	}

	Unregister(Software)
	if IsRegistered(Software) {
		t.Error("IsRegistered(software) = true after Unregister")
	}
	if _, err := Open(Software); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open after Unregister error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestAvailableSorted(t *testing.T) {
	withRegistry(t, map[string]Factory{"zeta": stub("zeta"), Vulkan: stub(Vulkan), Software: stub(Software)})

	got := Available()
	want := []string{Software, Vulkan, "zeta"}
	if len(got) != len(want) {
		t.Fatalf("Available() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Available()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDefaultPriority(t *testing.T) {
	tests := []struct {
		name string
		reg  map[string]Factory
		want string
	}{
		{"vulkan first", map[string]Factory{Software: stub(Software), Vulkan: stub(Vulkan)}, Vulkan},
		{"fallback on failure", map[string]Factory{Software: stub(Software), Vulkan: failing(Vulkan)}, Software},
		{"unknown last", map[string]Factory{"other": stub("other"), Software: stub(Software)}, Software},
		{"only unknown", map[string]Factory{"other": stub("other")}, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withRegistry(t, tt.reg)
			a, err := Default()
			if err != nil {
				t.Fatalf("Default() error = %v", err)
			}
			if got := a.(stubAdapter).name; got != tt.want {
				t.Errorf("Default() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultNoneAvailable(t *testing.T) {
	withRegistry(t, map[string]Factory{})
	if _, err := Default(); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Default() error = %v, want ErrBackendNotAvailable", err)
	}

	withRegistry(t, map[string]Factory{Vulkan: failing(Vulkan)})
	if _, err := Default(); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Default() error = %v, want ErrBackendNotAvailable", err)
	}
}
