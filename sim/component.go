package sim

import (
	"fmt"
	"os"
	"sync"
)

// A Component is an element that is being simulated. It observes the ports it
// owns and reacts to arriving messages.
type Component interface {
	Named
	Handler
	Hookable

	Ports() []Port
	GetPortByName(name string) Port
	AddPort(name string, port Port)
	NotifyRecv(port Port)
	NotifyPortFree(port Port)
}

// ComponentBase provides some functions that other component can use.
type ComponentBase struct {
	HookableBase
	sync.Mutex

	name      string
	ports     map[string]Port
	portNames []string
}

// NewComponentBase creates a new ComponentBase
func NewComponentBase(name string) *ComponentBase {
	NameMustBeValid(name)

	c := new(ComponentBase)
	c.name = name
	c.ports = make(map[string]Port)

	return c
}

// Name returns the name of the component.
func (c *ComponentBase) Name() string {
	return c.name
}

// AddPort registers a port under a local name.
func (c *ComponentBase) AddPort(name string, port Port) {
	if _, found := c.ports[name]; found {
		panic(fmt.Sprintf(
			"component %s already has a port named %s", c.name, name))
	}

	c.ports[name] = port
	c.portNames = append(c.portNames, name)
}

// Ports returns the ports owned by the component, in registration order.
func (c *ComponentBase) Ports() []Port {
	list := make([]Port, 0, len(c.portNames))
	for _, n := range c.portNames {
		list = append(list, c.ports[n])
	}

	return list
}

// GetPortByName returns the port by the local name of the port.
func (c *ComponentBase) GetPortByName(name string) Port {
	port, found := c.ports[name]
	if !found {
		errMsg := fmt.Sprintf(
			"Port %s is not available on component %s.\n", name, c.name)
		errMsg += "Available ports include:\n"
		for n := range c.ports {
			errMsg += fmt.Sprintf("\t%s\n", n)
		}
		fmt.Fprint(os.Stderr, errMsg)

		panic("port not found")
	}

	return port
}
