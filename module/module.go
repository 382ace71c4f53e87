// Package module implements the codec module registry: a map from
// codec_id to packetizer/depacketizer factories, populated from built-ins
// and from dynamically loaded plugins. Grounded on
// original_source/tests/modules.cpp's load_modules()/Module contract and
// on main-cpp's optional module.test_function hook.
package module

import "github.com/martin-danhier/wvb-go/rtp"

// PacketizerFactory builds a fresh packetizer for one SSRC.
type PacketizerFactory func(ssrc uint32) rtp.Packetizer

// DepacketizerFactory builds a fresh depacketizer.
type DepacketizerFactory func() rtp.Depacketizer

// Module describes one codec's capabilities. TestFunction is optional: it
// is nil for modules (like the H.264 built-in) that expose no self-test
// hook, and set only by plugins that choose to implement one. Non-nil
// TestFunctions are invoked by Registry.SelfTest.
type Module struct {
	CodecID            string
	Name               string
	CreatePacketizer   PacketizerFactory
	CreateDepacketizer DepacketizerFactory
	TestFunction       func() error
}

// Info is the symbol every dynamically loaded plugin must export, named
// GetModuleInfo to mirror the C ABI's extern "C" get_module_info().
type Info func() Module
