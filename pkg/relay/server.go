package relay

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Settings configures the relay server and its gateway.
type Settings struct {
	Addr          string
	SystemPrompt  string
	MaxTranscript int
	Gateway       GatewayConfig
}

// Server accepts websocket connections and runs one Session per connection.
// It owns the transcript store; sessions reach their own transcript through
// their connection id and share nothing else.
type Server struct {
	baseCtx  context.Context
	store    *TranscriptStore
	gateway  CompletionGateway
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer wires the store, gateway and HTTP mux. ctx outlives individual
// requests and bounds in-flight gateway calls. staticFS, when non-nil, is
// served at the root path for the browser UI.
func NewServer(ctx context.Context, settings Settings, staticFS fs.FS) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Server{
		baseCtx: ctx,
		store:   NewTranscriptStore(settings.MaxTranscript, settings.SystemPrompt),
		gateway: NewGateway(settings.Gateway),
		upgrader: websocket.Upgrader{
			// The original served the UI cross-origin ("app.use(cors())");
			// keep the permissive policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	if staticFS != nil {
		mux.Handle("/", http.FileServer(http.FS(staticFS)))
	}
	s.httpSrv = &http.Server{Addr: settings.Addr, Handler: mux}
	return s
}

// Store exposes the transcript store, mainly for tests.
func (s *Server) Store() *TranscriptStore { return s.store }

// SetGateway swaps the completion gateway, mainly for tests.
func (s *Server) SetGateway(g CompletionGateway) { s.gateway = g }

// Handler returns the HTTP handler, usable with httptest servers.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// handleWS upgrades the connection, allocates a connection id and hands the
// socket to a Session. Each connection is fully independent of the others.
func (s *Server) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	connID := uuid.NewString()
	log.Info().Str("conn_id", connID).Str("remote", req.RemoteAddr).Msg("client connected")

	// The request context dies when this handler returns, so the session runs
	// against the server's base context instead. Each HTTP connection already
	// has its own goroutine; the session blocks it until the client goes away.
	sess := NewSession(connID, conn, s.store, s.gateway)
	sess.Run(s.baseCtx)
	log.Info().Str("conn_id", connID).Msg("client disconnected")
}

// Run serves until ctx is done or an interrupt arrives, then shuts the listener
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		defer srvCancel()
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting tutor relay server")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}
