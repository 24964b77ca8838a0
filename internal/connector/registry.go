package connector

import "fmt"

// Registry maps connection-type strings to connector instances. The
// orchestrator dispatches on the trader's stored connection type; adding
// a platform means registering one more connector, not touching the
// orchestrator.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register adds a connector under its Name.
func (r *Registry) Register(c Connector) {
	r.connectors[c.Name()] = c
}

// Lookup returns the connector for connectionType, or
// ErrUnsupportedConnectionType when none is registered.
func (r *Registry) Lookup(connectionType string) (Connector, error) {
	c, ok := r.connectors[connectionType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedConnectionType, connectionType)
	}
	return c, nil
}
