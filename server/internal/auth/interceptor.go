package auth

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// APIKeyInterceptor guards unary gRPC calls with a shared key carried in the
// metadata entry named header (lowercase). Any mode other than apikey, or an
// empty key, disables the check.
func APIKeyInterceptor(mode, header, key string) grpc.UnaryServerInterceptor {
	enforce := mode == ModeAPIKey && key != ""

	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		if enforce {
			if err := checkKey(ctx, header, key); err != nil {
				return nil, err
			}
		}
		return next(ctx, req)
	}
}

func checkKey(ctx context.Context, header, key string) error {
	md, _ := metadata.FromIncomingContext(ctx)
	got := md.Get(header)
	if len(got) == 0 {
		return status.Errorf(codes.Unauthenticated, "auth: %s metadata required", header)
	}
	if !keyEqual(got[0], key) {
		return status.Error(codes.Unauthenticated, "auth: api key rejected")
	}
	return nil
}

func keyEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
