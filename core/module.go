package core

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/dh1tw/tunnelsink/events"
)

// ModuleInfo describes a loadable module.
type ModuleInfo struct {
	Description string
	Usage       string
	LoadOnce    bool
	// Init sets up the module. If Init fails, Done is executed to unwind
	// whatever Init left behind.
	Init func(m *Module) error
	// Done releases the module. It must cope with a partially
	// initialized module.
	Done func(m *Module)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ModuleInfo)
)

// Register makes a module available under name. Register panics if a
// module is registered twice or without Init.
func Register(name string, info ModuleInfo) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if info.Init == nil {
		panic("core: Register module without Init " + name)
	}
	if _, dup := registry[name]; dup {
		panic("core: Register called twice for module " + name)
	}
	registry[name] = info
}

// Registered returns the sorted names of all registered modules.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the description of a registered module.
func Info(name string) (ModuleInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[name]
	return info, ok
}

// Module is a loaded instance of a registered module.
type Module struct {
	Core     *Core
	Index    uint32
	Name     string
	Argument string
	// Userdata is owned by the module implementation.
	Userdata interface{}

	info            ModuleInfo
	unloadRequested bool
}

func (m *Module) event() events.ModuleEvent {
	return events.ModuleEvent{Index: m.Index, Name: m.Name, Argument: m.Argument}
}

// LoadModule loads the registered module name with the given argument
// string.
func (c *Core) LoadModule(name, argument string) (*Module, error) {

	info, ok := Info(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}

	if info.LoadOnce {
		for _, m := range c.Modules() {
			if m.Name == name {
				return nil, fmt.Errorf("%w: %s", ErrModuleLoaded, name)
			}
		}
	}

	m := &Module{
		Core:     c,
		Name:     name,
		Argument: argument,
		info:     info,
	}

	if err := info.Init(m); err != nil {
		log.Printf("core: failed to load module %s: %v", name, err)
		if info.Done != nil {
			info.Done(m)
		}
		return nil, err
	}

	c.Lock()
	m.Index = c.moduleIndex
	c.moduleIndex++
	c.modules[m.Index] = m
	c.Unlock()

	log.Printf("core: loaded module %s (#%d)", name, m.Index)
	c.publish(m.event(), events.ModuleLoaded)

	return m, nil
}

// UnloadModule unloads m. Unloading a module twice is a no-op.
func (c *Core) UnloadModule(m *Module) {
	c.Lock()
	if _, ok := c.modules[m.Index]; !ok || c.modules[m.Index] != m {
		c.Unlock()
		return
	}
	delete(c.modules, m.Index)
	c.Unlock()

	if m.info.Done != nil {
		m.info.Done(m)
	}

	log.Printf("core: unloaded module %s (#%d)", m.Name, m.Index)
	c.publish(m.event(), events.ModuleUnloaded)
}

// UnloadRequest schedules m to be unloaded in the next main loop
// iteration. Safe for concurrent use.
func (c *Core) UnloadRequest(m *Module) {
	c.Lock()
	if m.unloadRequested {
		c.Unlock()
		return
	}
	m.unloadRequested = true
	c.Unlock()

	c.Mainloop.Once(func() {
		c.UnloadModule(m)
	})
}

// Modules returns all loaded modules ordered by index. Safe for
// concurrent use.
func (c *Core) Modules() []*Module {
	c.RLock()
	defer c.RUnlock()

	modules := make([]*Module, 0, len(c.modules))
	for _, m := range c.modules {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		return modules[i].Index < modules[j].Index
	})
	return modules
}

// Shutdown unloads all modules, the most recently loaded first.
func (c *Core) Shutdown() {
	modules := c.Modules()
	for i := len(modules) - 1; i >= 0; i-- {
		c.UnloadModule(modules[i])
	}
}
