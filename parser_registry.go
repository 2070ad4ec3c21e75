package precognition

import (
	"slices"
	"sync"
)

// registry holds the process-wide defaults that every Form and Server
// snapshots when it is built.
//
// It is the equivalent of an application plugin registering parsers and
// handlers once at startup. Later registrations do not reach forms or
// servers that already exist.
type registry struct {
	mu                   sync.RWMutex
	clientParsers        []ErrorParser
	serverParsers        []ErrorParser
	clientStatusHandlers StatusHandlers[StatusHandler]
	serverStatusHandlers StatusHandlers[ServerStatusHandler]
}

func newRegistry() *registry {
	return &registry{
		clientStatusHandlers: StatusHandlers[StatusHandler]{},
		serverStatusHandlers: StatusHandlers[ServerStatusHandler]{},
	}
}

func (reg *registry) addClientParser(parser ErrorParser) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.clientParsers = append(reg.clientParsers, parser)
}

func (reg *registry) addServerParser(parser ErrorParser) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.serverParsers = append(reg.serverParsers, parser)
}

func (reg *registry) setClientStatusHandler(status int, handler StatusHandler) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.clientStatusHandlers.Set(status, handler)
}

func (reg *registry) setServerStatusHandler(status int, handler ServerStatusHandler) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.serverStatusHandlers.Set(status, handler)
}

func (reg *registry) snapshotClient() ([]ErrorParser, StatusHandlers[StatusHandler]) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return slices.Clone(reg.clientParsers), reg.clientStatusHandlers.Clone()
}

func (reg *registry) snapshotServer() ([]ErrorParser, StatusHandlers[ServerStatusHandler]) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return slices.Clone(reg.serverParsers), reg.serverStatusHandlers.Clone()
}

func (reg *registry) reset() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.clientParsers = nil
	reg.serverParsers = nil
	reg.clientStatusHandlers = StatusHandlers[StatusHandler]{}
	reg.serverStatusHandlers = StatusHandlers[ServerStatusHandler]{}
}

///////////////////////////////////////////////////////////////////////////////
// Global Singleton and Package Functions
///////////////////////////////////////////////////////////////////////////////

var _gRegistry = newRegistry()

// RegisterErrorParser adds a client-side parser to the global defaults.
// Global parsers run before per-form parsers.
func RegisterErrorParser(parser ErrorParser) {
	if parser != nil {
		_gRegistry.addClientParser(parser)
	}
}

// RegisterServerErrorParser adds a server-side parser to the global
// defaults.
func RegisterServerErrorParser(parser ErrorParser) {
	if parser != nil {
		_gRegistry.addServerParser(parser)
	}
}

// RegisterStatusHandler sets the global client handler for status.
// Per-form handlers for the same status take precedence.
func RegisterStatusHandler(status int, handler StatusHandler) error {
	return _gRegistry.setClientStatusHandler(status, handler)
}

// RegisterServerStatusHandler sets the global server handler for status.
func RegisterServerStatusHandler(status int, handler ServerStatusHandler) error {
	return _gRegistry.setServerStatusHandler(status, handler)
}

// ResetRegistry drops every global registration. Intended for tests.
func ResetRegistry() {
	_gRegistry.reset()
}
