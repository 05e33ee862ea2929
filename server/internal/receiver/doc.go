// Package receiver implements rpc.SnapshotServiceServer, the gRPC endpoint
// that accepts SensorSnapshot messages from agents.
//
// SendSnapshot rejects snapshots without a sensor_id (codes.InvalidArgument),
// stores the rest, evaluates alert rules and records the prediction to the
// history backend. History failures are logged and never fail the RPC.
// Authentication is enforced upstream by the interceptor in package auth.
package receiver
