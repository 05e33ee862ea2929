// Package types defines the wire types shared by the agent and server: the
// per-sensor SensorSnapshot the agent ships after every scrape cycle and the
// SendResponse the server acknowledges it with.
//
// The types are plain JSON-tagged structs; pkg/rpc carries them over gRPC
// with a JSON codec, and the server's REST API and websocket hub reuse the
// same field names.
package types
