// Package rpc defines the SnapshotService gRPC contract between agent and
// server without generated protobuf code.
//
// Messages are the JSON-tagged structs from pkg/types. codec.go registers a
// "json" encoding.Codec with grpc; clients select it per call through
// grpc.CallContentSubtype, and the server picks it up from the request's
// content-type (application/grpc+json).
//
//	/sensorsight.v1.SnapshotService/SendSnapshot  unary  SensorSnapshot → SendResponse
package rpc
