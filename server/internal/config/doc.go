// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort          port for the gRPC receiver (default 50051)
//   - HTTPPort          port for the REST API, WebSocket hub and /metrics (default 8080)
//   - Auth.Mode         "apikey", "jwt" or "none"
//   - Auth.KeyEnv       environment variable holding the expected API key
//   - Auth.Header       gRPC metadata/HTTP header name (default "x-api-key")
//   - Auth.JWTSecretEnv environment variable holding the HS256 secret
//   - Snapshot.TTL      how long a sensor snapshot remains live (default 5m)
//   - Storage           optional postgres prediction history (dsn_env, table_prefix)
//   - BroadcastInterval WebSocket push period (default 5s)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
