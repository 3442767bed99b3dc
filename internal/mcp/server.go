package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/services"
	"github.com/kuhlman-labs/migration-tracker/internal/syncer"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SyncOperations is the part of services.SyncService exposed as tools
type SyncOperations interface {
	TriggerSync(ctx context.Context, req services.TriggerRequest) syncer.Ack
	RunSync(ctx context.Context, req services.TriggerRequest) (*syncer.Result, error)
	ListSyncHistories(ctx context.Context, enterprise string, limit, offset int) ([]*models.SyncHistory, error)
	GetSyncHistory(ctx context.Context, syncID string) (*models.SyncHistory, error)
	GetCronConfig(ctx context.Context, enterprise string) (*models.CronConfig, error)
	SetCronConfig(ctx context.Context, enterprise, schedule string, enabled bool) (*models.CronConfig, error)
	CheckAccess(ctx context.Context, enterprise, credential string) ([]*models.OrgAccessStatus, error)
	ListAccessStatuses(ctx context.Context, enterprise string) ([]*models.OrgAccessStatus, error)
	ListMigrations(ctx context.Context, f models.MigrationFilter) (*services.MigrationPage, error)
}

var _ SyncOperations = (*services.SyncService)(nil)

// Server wraps the MCP server and provides sync tools
type Server struct {
	mcpServer *server.MCPServer
	sseServer *server.SSEServer
	svc       SyncOperations
	logger    *slog.Logger
	addr      string
	mu        sync.RWMutex
	running   bool
}

// Config holds configuration for the MCP server
type Config struct {
	// Address to listen on (e.g., ":8081")
	Address string
	Version string
}

// NewServer creates a new MCP server with the sync tools registered
func NewServer(svc SyncOperations, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	mcpServer := server.NewMCPServer(
		"Migration Tracker",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(`You are the Migration Tracker assistant. You have tools that sync GitHub
Enterprise Importer migration records into the tracker, report on past sync runs, manage the
per-enterprise sync schedule, and query the stored migrations.

Key capabilities:
- Start a sync for an enterprise, optionally limited to some organizations
- List past sync runs and their per-organization results
- Read or change the cron schedule of an enterprise
- Check which organizations the tracker can administer
- List stored migrations filtered by organization and state

Tools run with the tracker's own credential.`),
	)

	s := &Server{
		mcpServer: mcpServer,
		svc:       svc,
		logger:    logger,
		addr:      cfg.Address,
	}

	s.registerTools()

	return s
}

// Start starts the MCP server on the configured address. It blocks.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("MCP server already running")
	}
	s.running = true
	s.sseServer = server.NewSSEServer(s.mcpServer,
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
	)
	sse := s.sseServer
	s.mu.Unlock()

	s.logger.Info("Starting MCP server", "address", s.addr)

	if err := sse.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the MCP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.logger.Info("Stopping MCP server")
	s.running = false

	if s.sseServer != nil {
		if err := s.sseServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown MCP server: %w", err)
		}
	}

	return nil
}

// IsRunning returns true if the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server's listening address
func (s *Server) Address() string {
	return s.addr
}

// registerTools registers the sync tools with the MCP server
func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("trigger_sync",
			mcp.WithDescription("Start a sync of GitHub migration records for an enterprise. Without wait the tool returns as soon as the organizations are known and the run continues in the background."),
			mcp.WithString("enterprise",
				mcp.Required(),
				mcp.Description("Enterprise slug"),
			),
			mcp.WithArray("organizations",
				mcp.Description("Limit the run to these organization logins"),
				mcp.Items(map[string]any{"type": "string"}),
			),
			mcp.WithBoolean("require_access",
				mcp.Description("Skip organizations whose last access check failed"),
			),
			mcp.WithBoolean("wait",
				mcp.Description("Wait for the run to finish and return its history"),
			),
		),
		s.handleTriggerSync,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_sync_histories",
			mcp.WithDescription("List past sync runs of an enterprise, newest first, or fetch one run by id."),
			mcp.WithString("enterprise",
				mcp.Description("Enterprise slug (required unless sync_id is given)"),
			),
			mcp.WithString("sync_id",
				mcp.Description("Return only this run"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of runs to return (default 20, max 100)"),
			),
		),
		s.handleListSyncHistories,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_cron_config",
			mcp.WithDescription("Get the sync schedule of an enterprise with its last and next run times."),
			mcp.WithString("enterprise",
				mcp.Required(),
				mcp.Description("Enterprise slug"),
			),
		),
		s.handleGetCronConfig,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("set_cron_config",
			mcp.WithDescription("Set the sync schedule of an enterprise. Scheduled runs repeat the organizations of the last completed run."),
			mcp.WithString("enterprise",
				mcp.Required(),
				mcp.Description("Enterprise slug"),
			),
			mcp.WithString("schedule",
				mcp.Required(),
				mcp.Description("Five-field cron expression or descriptor such as @daily"),
			),
			mcp.WithBoolean("enabled",
				mcp.Required(),
				mcp.Description("Whether the schedule is active"),
			),
		),
		s.handleSetCronConfig,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("check_org_access",
			mcp.WithDescription("Report which organizations of an enterprise the tracker can administer. With refresh the organizations are checked again against GitHub."),
			mcp.WithString("enterprise",
				mcp.Required(),
				mcp.Description("Enterprise slug"),
			),
			mcp.WithBoolean("refresh",
				mcp.Description("Check again instead of returning the last result"),
			),
		),
		s.handleCheckOrgAccess,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_migrations",
			mcp.WithDescription("List stored migration records."),
			mcp.WithString("enterprise",
				mcp.Description("Filter by enterprise slug"),
			),
			mcp.WithString("organization",
				mcp.Description("Filter by organization login"),
			),
			mcp.WithString("state",
				mcp.Description("Filter by migration state"),
				mcp.Enum(migrationStates()...),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of records to return (default 50, max 500)"),
			),
			mcp.WithNumber("offset",
				mcp.Description("Number of records to skip"),
			),
		),
		s.handleListMigrations,
	)

	s.logger.Info("Registered MCP tools", "count", 6)
}

func migrationStates() []string {
	return []string{
		string(models.MigrationStateNotStarted),
		string(models.MigrationStateQueued),
		string(models.MigrationStatePendingValidation),
		string(models.MigrationStateInProgress),
		string(models.MigrationStateSucceeded),
		string(models.MigrationStateFailed),
		string(models.MigrationStateFailedValidation),
	}
}
