package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loykin/wrapmcp/internal/metrics"
	"github.com/loykin/wrapmcp/internal/protocol"
	"github.com/loykin/wrapmcp/internal/proxy"
)

const sessionHeader = "Mcp-Session-Id"

// HTTPServer exposes the proxy over streamable HTTP: a single POST /mcp
// endpoint carrying one JSON-RPC message per request. There is no push
// channel, so tools/list_changed notifications are dropped by the
// orchestrator on this transport.
type HTTPServer struct {
	orch *proxy.Orchestrator
	srv  *http.Server
}

// HTTPOptions configures the listener.
type HTTPOptions struct {
	Addr    string
	Metrics bool
}

// NewHTTPServer builds the gin router and the underlying http.Server.
func NewHTTPServer(orch *proxy.Orchestrator, opts HTTPOptions) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &HTTPServer{orch: orch}
	r.POST("/mcp", s.handleMCP)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http transport ready", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// handleMCP decodes one JSON-RPC message, routes it through the
// orchestrator and writes the response. Notifications get 202 Accepted
// with no body. Sessions are advisory: initialize mints an id, later
// requests echo whatever the client sent.
func (s *HTTPServer) handleMCP(c *gin.Context) {
	var req protocol.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, protocol.Response{
			JSONRPC: "2.0",
			Error:   protocol.NewErrorObject(protocol.CodeParseError, "parse error: "+err.Error()),
		})
		return
	}

	if req.Method == protocol.MethodInitialize {
		c.Header(sessionHeader, uuid.NewString())
	} else if sid := c.GetHeader(sessionHeader); sid != "" {
		c.Header(sessionHeader, sid)
	}

	resp := s.orch.Handle(c.Request.Context(), &req)
	if resp == nil {
		c.Status(http.StatusAccepted)
		return
	}
	c.Data(http.StatusOK, "application/json", mustEncode(resp))
}

func mustEncode(resp *protocol.Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		b, _ = json.Marshal(protocol.Response{
			JSONRPC: "2.0",
			ID:      resp.ID,
			Error:   protocol.NewErrorObject(protocol.CodeInternalError, "encode response: "+err.Error()),
		})
	}
	return b
}
