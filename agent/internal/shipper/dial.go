package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/sensorsight/sensorsight/agent/internal/config"
)

const defaultKeyHeader = "x-api-key"

func grpcDial(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	creds, err := transportCreds(cfg.ServerAuth)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, grpc.WithTransportCredentials(creds)) //nolint:staticcheck // grpc 1.62
}

// transportCreds picks TLS client credentials for mtls and plaintext
// otherwise. API keys travel as per-call metadata, see withAPIKey.
func transportCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	if auth.Mode != "mtls" {
		return insecure.NewCredentials(), nil
	}

	pair, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("shipper: client certificate: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{pair}}

	if auth.CAFile == "" {
		return credentials.NewTLS(tlsCfg), nil
	}
	pem, err := os.ReadFile(auth.CAFile)
	if err != nil {
		return nil, fmt.Errorf("shipper: ca bundle: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("shipper: ca bundle %q holds no certificates", auth.CAFile)
	}
	tlsCfg.RootCAs = roots
	return credentials.NewTLS(tlsCfg), nil
}

func withAPIKey(ctx context.Context, auth config.AuthConfig) context.Context {
	if auth.Mode != "apikey" || auth.KeyEnv == "" {
		return ctx
	}
	header := auth.Header
	if header == "" {
		header = defaultKeyHeader
	}
	return metadata.AppendToOutgoingContext(ctx, header, auth.Key())
}
