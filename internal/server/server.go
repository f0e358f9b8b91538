package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const readHeaderTimeout = 5 * time.Second

type Params struct {
	fx.In

	Config HttpConfig
	Routes []Route `group:"routes"`
	Log    *zap.Logger
}

// Server is a plain HTTP server, optionally accepting HTTP/2 without
// TLS.
type Server struct {
	address string
	http    *http.Server
	log     *zap.Logger
}

func New(params Params) *Server {
	mux := http.NewServeMux()
	for _, route := range params.Routes {
		mux.Handle(route.Pattern, route.Handler)
	}

	var handler http.Handler = mux
	if params.Config.H2c {
		handler = h2c.NewHandler(mux, &http2.Server{})
	}

	address := params.Config.Address()

	return &Server{
		address: address,
		http: &http.Server{
			Addr:              address,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: params.Log.With(zap.String("address", address)),
	}
}

// Listen binds the configured address.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		s.log.Error("failed to listen", zap.Error(err))
		return nil, err
	}

	s.log.Info("listening", zap.Stringer("bound", listener.Addr()))

	return listener, nil
}

// Serve serves requests on listener until the server is shut down.
func (s *Server) Serve(listener net.Listener) error {
	err := s.http.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	s.log.Error("failed to serve", zap.Error(err))

	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Error("failed to shutdown", zap.Error(err))
		return err
	}

	return nil
}
