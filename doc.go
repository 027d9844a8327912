// Package dispatch implements a request dispatch and validation engine for
// command, query, and event handling services built over an append-only
// event log and a publish/subscribe bus. It binds named requests to
// handlers, runs stateless and state-derived rule chains ahead of each
// handler, and sequences persistence before publication of the events a
// handler produces.
//
// Typical usage looks like:
//   - Create a Registrar for each request kind (commands, queries, events)
//   - Register handlers, attaching guards, rules, and projected state tests
//   - Open an EventStore and a Pubsub (in-memory, or one of the back ends)
//   - Use an Invoker to dispatch requests, persist, then publish results
//   - React to published events with SubscribeEvents
//
// The internal/demo package wires a small domain through the same API, and
// cmd/dispatchd serves it over HTTP.
package dispatch
