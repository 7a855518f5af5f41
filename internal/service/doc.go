// Package service is the scheduler that ties sockets, correlation and light
// records together.
//
// One dispatch goroutine owns every state transition: it receives inbound
// frames from both sockets, feeds them to the correlation engine, creates a
// light the first time a device id is seen, hands each frame to its light,
// and runs the periodic tick. Discovery is a GetService broadcast sent at
// start and on every tick (5s). Lights are never evicted; an unreachable
// light stays known and comes back when it is heard from again.
//
// # Extensions
//
// Extensions are registered at construction and started with the service.
// Besides Start and Stop an extension may implement any of
// LightAddedListener, MessageListener, TickListener and
// light.ChangeListener; each implemented hook is invoked on the dispatch
// goroutine, in registration order, after the core has done its own
// bookkeeping. Hooks must not block.
package service
