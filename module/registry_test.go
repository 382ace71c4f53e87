package module

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martin-danhier/wvb-go/rtp"
)

func TestNewRegistryRegistersH264BuiltIn(t *testing.T) {
	r := NewRegistry()

	m, ok := r.Lookup("h264")
	require.True(t, ok)
	assert.Equal(t, "H.264", m.Name)
	assert.Nil(t, m.TestFunction, "the built-in H.264 module exposes no self-test hook")

	packetizer := m.CreatePacketizer(4242)
	assert.Equal(t, "H264RtpPacketizer", packetizer.Name())

	depacketizer := m.CreateDepacketizer()
	assert.Equal(t, "H264RtpDepacketizer", depacketizer.Name())
}

func TestModulesOrderIsBuiltInsFirst(t *testing.T) {
	r := NewRegistry()
	modules := r.Modules()

	require.NotEmpty(t, modules)
	assert.Equal(t, "h264", modules[0].CodecID, "built-ins must enumerate before any plugin")
}

func TestLookupUnknownCodecReturnsFalse(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("does-not-exist")
	assert.False(t, ok)
}

func TestLoadPluginsOnEmptyDirIsNoop(t *testing.T) {
	r := NewRegistry()
	before := len(r.Modules())

	require.NoError(t, r.LoadPlugins(t.TempDir()))
	assert.Len(t, r.Modules(), before)
}

func TestLoadPluginsOnMissingDirReturnsNoError(t *testing.T) {
	r := NewRegistry()
	err := r.LoadPlugins("/nonexistent/path/for/sure/not/there")
	// filepath.Glob does not error on a missing directory, it simply
	// returns no matches, so this must behave like the empty-dir case.
	assert.NoError(t, err)
}

func TestSelfTestSkipsModulesWithoutTestFunction(t *testing.T) {
	r := NewRegistry()
	// The built-in H.264 module exposes no self-test hook.
	assert.NoError(t, r.SelfTest())
}

func TestSelfTestRunsRegisteredTestFunctions(t *testing.T) {
	r := NewRegistry()
	called := false
	r.register(Module{
		CodecID:            "self-test-ok",
		Name:               "Self Test OK",
		CreatePacketizer:   func(ssrc uint32) rtp.Packetizer { return nil },
		CreateDepacketizer: func() rtp.Depacketizer { return nil },
		TestFunction: func() error {
			called = true
			return nil
		},
	})

	require.NoError(t, r.SelfTest())
	assert.True(t, called)
}

func TestSelfTestJoinsFailuresAcrossModules(t *testing.T) {
	r := NewRegistry()
	r.register(Module{
		CodecID:            "self-test-broken",
		Name:               "Self Test Broken",
		CreatePacketizer:   func(ssrc uint32) rtp.Packetizer { return nil },
		CreateDepacketizer: func() rtp.Depacketizer { return nil },
		TestFunction: func() error {
			return errors.New("self test boom")
		},
	})

	err := r.SelfTest()
	require.Error(t, err)
	assert.ErrorContains(t, err, "self-test-broken")
	assert.ErrorContains(t, err, "self test boom")
}
