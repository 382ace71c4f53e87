package module

import (
	"errors"
	"fmt"
	"path/filepath"
	"plugin"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/martin-danhier/wvb-go/codec/h264"
	"github.com/martin-danhier/wvb-go/rtp"
)

// pluginSymbolName is the exported symbol every plugin .so must provide,
// matching original_source's extern "C" get_module_info() contract.
const pluginSymbolName = "GetModuleInfo"

// maxConcurrentLoads bounds how many plugin files are opened at once, since
// plugin.Open is not safe to call with unbounded parallelism against a
// large directory.
const maxConcurrentLoads = 4

// Registry holds every known codec module, keyed by codec id. Enumeration
// order (Modules) is deterministic: built-ins first in their registration
// order, then plugins in sorted file-path order, per
// original_source/tests/modules.cpp's index-stable expectations.
type Registry struct {
	order   []string
	modules map[string]Module
	log     *log.Entry
}

// NewRegistry returns a registry pre-populated with every built-in codec
// module. Currently that is H.264 only; spec.md's Non-goals exclude
// dynamic codec switching but not registering more than one codec.
func NewRegistry() *Registry {
	r := &Registry{
		modules: make(map[string]Module),
		log:     log.WithField("component", "module-registry"),
	}
	r.register(h264Module())
	return r
}

func h264Module() Module {
	return Module{
		CodecID: "h264",
		Name:    "H.264",
		CreatePacketizer: func(ssrc uint32) rtp.Packetizer {
			return h264.NewPacketizer(ssrc, 96)
		},
		CreateDepacketizer: func() rtp.Depacketizer {
			return h264.NewDepacketizer()
		},
	}
}

func (r *Registry) register(m Module) {
	if _, exists := r.modules[m.CodecID]; exists {
		r.log.WithField("codec_id", m.CodecID).Warn("duplicate module registration ignored")
		return
	}
	r.modules[m.CodecID] = m
	r.order = append(r.order, m.CodecID)
}

// Lookup returns the module registered for codecID.
func (r *Registry) Lookup(codecID string) (Module, bool) {
	m, ok := r.modules[codecID]
	return m, ok
}

// Modules returns every registered module in deterministic registration
// order: built-ins first, then plugins in sorted file-path order.
func (r *Registry) Modules() []Module {
	out := make([]Module, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.modules[id])
	}
	return out
}

// SelfTest runs every registered module's optional TestFunction, in
// registration order, and joins every failure into a single error rather
// than stopping at the first one, so one bad plugin does not hide another
// module's failure. Modules with a nil TestFunction are skipped.
func (r *Registry) SelfTest() error {
	var errs []error
	for _, id := range r.order {
		m := r.modules[id]
		if m.TestFunction == nil {
			continue
		}
		if err := m.TestFunction(); err != nil {
			errs = append(errs, fmt.Errorf("module %s: %w", m.CodecID, err))
		}
	}
	return errors.Join(errs...)
}

// LoadPlugins opens every *.so file in dir concurrently (bounded by
// maxConcurrentLoads) and registers the module each one exports. A
// per-plugin load failure is logged and the plugin is skipped, per spec.md
// §7's policy of preferring partial availability over an all-or-nothing
// codec set. A missing or unreadable directory yields no plugins and no
// error (filepath.Glob ignores I/O errors); only a malformed glob pattern
// built from dir aborts the call.
func (r *Registry) LoadPlugins(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return fmt.Errorf("module registry: glob plugin dir: %w", err)
	}
	sort.Strings(paths)

	loaded := make([]*Module, len(paths))

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentLoads)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			m, err := loadPlugin(path)
			if err != nil {
				r.log.WithError(err).WithField("path", path).Warn("skipping plugin that failed to load")
				return nil
			}
			loaded[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("module registry: load plugins: %w", err)
	}

	for _, m := range loaded {
		if m != nil {
			r.register(*m)
		}
	}
	return nil
}

func loadPlugin(path string) (*Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sym, err := p.Lookup(pluginSymbolName)
	if err != nil {
		return nil, fmt.Errorf("lookup %s in %s: %w", pluginSymbolName, path, err)
	}
	infoFunc, ok := sym.(func() Module)
	if !ok {
		return nil, fmt.Errorf("%s in %s has unexpected signature", pluginSymbolName, path)
	}
	m := infoFunc()
	if m.CodecID == "" || m.CreatePacketizer == nil || m.CreateDepacketizer == nil {
		return nil, fmt.Errorf("%s in %s returned an incomplete module", pluginSymbolName, path)
	}
	return &m, nil
}
