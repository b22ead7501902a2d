package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// errUnauthenticated is returned for every rejected or missing token. The
// reason stays in the debug log.
var errUnauthenticated = status.Error(codes.Unauthenticated, "unauthenticated")

// publicMethods are served without an access token.
var publicMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
	"/grpc.health.v1.Health/List":  true,
}

// ClaimsFromContext returns the claims the interceptor attached.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

// authenticate reads "authorization: Bearer <token>" from the incoming
// metadata and returns ctx carrying the verified claims.
func (s *GRPCServer) authenticate(ctx context.Context) (context.Context, error) {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AuthorizationHeaderName)
		if len(values) > 0 {
			header = values[0]
		}
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) || token == "" {
		return nil, errUnauthenticated
	}

	claims, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Debug(ctx, "access token rejected", "error", err)
		if common.IsAccessTokenError(err) {
			return nil, errUnauthenticated
		}
		return nil, status.Error(codes.Internal, "internal error")
	}

	return context.WithValue(ctx, claimsKey, claims), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	ctx, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	return handler(ctx, req)
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authenticatedStream) Context() context.Context { return a.ctx }

func (s *GRPCServer) accessTokenStreamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if publicMethods[info.FullMethod] {
		return handler(srv, ss)
	}

	ctx, err := s.authenticate(ss.Context())
	if err != nil {
		return err
	}

	return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
}
