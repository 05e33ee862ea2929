// Package shipper forwards agent results to sensorsight-server over the
// SnapshotService gRPC call defined in pkg/rpc.
//
// Ship never blocks. Snapshots wait in a bounded queue that drops its oldest
// entry when full. Run owns the connection: it dials, streams the queue and
// redials after jittered exponential delays (1s doubling to 1m). Snapshots
// the server refuses outright (InvalidArgument, Unauthenticated,
// PermissionDenied) are dropped rather than retried.
package shipper
