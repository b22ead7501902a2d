package session

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/wadai/internal/client/client"
	"github.com/dmitrijs2005/wadai/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Transport is an http.RoundTripper that adds the session's bearer token
// and, on a 401, rotates once and replays the request.
type Transport struct {
	Session *Session
	// Base defaults to http.DefaultTransport.
	Base http.RoundTripper
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) send(req *http.Request, token string) (*http.Response, error) {
	r := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	r.Header.Set(common.AuthorizationHeaderName, common.BearerScheme+" "+token)
	return t.base().RoundTrip(r)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Session.AccessToken()
	if err != nil {
		return t.base().RoundTrip(req)
	}

	resp, err := t.send(req, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// a body that cannot be rebuilt cannot be replayed
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	fresh, rerr := t.Session.refresh(req.Context(), token)
	if rerr != nil {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return t.send(req, fresh)
}

// UnaryClientInterceptor attaches the bearer token to outgoing gRPC calls
// and retries once after a rotation when the server answers Unauthenticated.
// Without a session calls go out unauthenticated.
func (s *Session) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if !s.authenticated() {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		var last error
		err := s.Do(ctx, func(ctx context.Context, token string) error {
			last = invoker(withBearer(ctx, token), method, req, reply, cc, opts...)
			if status.Code(last) == codes.Unauthenticated {
				return client.ErrUnauthorized
			}
			return last
		})
		// surface the server's status rather than the internal sentinel
		if errors.Is(err, client.ErrUnauthorized) && last != nil {
			return last
		}
		return err
	}
}

func withBearer(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Set(common.AuthorizationHeaderName, common.BearerScheme+" "+token)
	return metadata.NewOutgoingContext(ctx, md)
}
