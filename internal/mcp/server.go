// Package mcp provides an MCP (Model Context Protocol) server for episim,
// letting an agent launch runs and inspect the run log.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/ratelimit"
)

// Server wraps the MCP SDK server and provides episim tools.
type Server struct {
	server       *sdk.Server
	base         *config.Config
	logger       *slog.Logger
	audit        *AuditLogger
	toolLimiters ratelimit.ToolLimiters

	// runMu serializes runs so run ids are handed out in call order.
	runMu sync.Mutex
}

// Config holds server configuration.
type Config struct {
	Name    string         // Server name (e.g., "episim")
	Version string         // Server version
	Base    *config.Config // Configuration every run starts from
	Logger  *slog.Logger   // Operational logger; nil discards
}

// NewServer creates a new MCP server with episim tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Base == nil {
		return nil, errors.New("mcp: base configuration is required")
	}
	if err := cfg.Base.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		base:         cfg.Base,
		logger:       logger,
		audit:        NewAuditLogger(cfg.Base.Output.ResultsDir),
		toolLimiters: ratelimit.NewToolLimiters(),
	}

	if err := s.registerTools(); err != nil {
		s.audit.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		s.audit.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}
	return s, nil
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.audit.Close()
}
