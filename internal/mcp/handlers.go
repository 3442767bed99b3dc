package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/services"
	"github.com/mark3labs/mcp-go/mcp"
)

// historyToSummary condenses a sync history for tool output
func historyToSummary(h *models.SyncHistory, withOrgs bool) SyncSummary {
	summary := SyncSummary{
		SyncID:                 h.SyncID,
		EnterpriseName:         h.EnterpriseName,
		Status:                 string(h.Status),
		StartTime:              h.StartTime,
		EndTime:                h.EndTime,
		TotalOrganizations:     h.TotalOrganizations,
		CompletedOrganizations: h.CompletedOrganizations,
		ErrorMessage:           h.ErrorMessage,
	}

	if h.EndTime != nil {
		d := h.EndTime.Sub(h.StartTime).Round(time.Second).String()
		summary.Duration = &d
	}

	for _, org := range h.Organizations {
		summary.TotalMigrations += org.TotalMigrations
		if len(org.Errors) > 0 {
			summary.FailedOrganizations = append(summary.FailedOrganizations, org.Login)
		}
		if withOrgs {
			summary.Organizations = append(summary.Organizations, OrgSummary{
				Login:           org.Login,
				TotalMigrations: org.TotalMigrations,
				TotalPages:      org.TotalPages,
				Completed:       org.Completed,
				Errors:          org.Errors,
			})
		}
	}

	return summary
}

// stringArgs reads an optional array-of-strings argument
func stringArgs(req mcp.CallToolRequest, name string) ([]string, error) {
	raw, ok := req.GetArguments()[name]
	if !ok || raw == nil {
		return nil, nil
	}

	var out []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be an array of strings", name)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = v
	default:
		return nil, fmt.Errorf("%s must be an array of strings", name)
	}
	return out, nil
}

// handleTriggerSync implements the trigger_sync tool
func (s *Server) handleTriggerSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enterprise, err := req.RequireString("enterprise")
	if err != nil || enterprise == "" {
		return mcp.NewToolResultError("enterprise parameter is required"), nil
	}
	orgs, err := stringArgs(req, "organizations")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	trigger := services.TriggerRequest{
		Enterprise:    enterprise,
		Organizations: orgs,
		RequireAccess: req.GetBool("require_access", false),
	}

	if req.GetBool("wait", false) {
		result, err := s.svc.RunSync(ctx, trigger)
		if err != nil {
			s.logger.Error("Sync failed", "enterprise", enterprise, "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("Sync failed: %v", err)), nil
		}
		summary := historyToSummary(result.History, true)
		return s.jsonResult(TriggerSyncOutput{
			Success:       true,
			SyncID:        result.SyncID,
			Message:       fmt.Sprintf("Sync %s finished as %s", result.SyncID, result.History.Status),
			Organizations: result.History.OrgLogins(),
			Result:        &summary,
		})
	}

	ack := s.svc.TriggerSync(ctx, trigger)
	if !ack.Success {
		return mcp.NewToolResultError(fmt.Sprintf("Sync not started: %s", ack.Message)), nil
	}

	logins := make([]string, 0, len(ack.Progress))
	for _, p := range ack.Progress {
		logins = append(logins, p.OrganizationName)
	}
	return s.jsonResult(TriggerSyncOutput{
		Success:       true,
		SyncID:        ack.SyncID,
		Message:       ack.Message,
		Organizations: logins,
	})
}

// handleListSyncHistories implements the list_sync_histories tool
func (s *Server) handleListSyncHistories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if syncID := req.GetString("sync_id", ""); syncID != "" {
		h, err := s.svc.GetSyncHistory(ctx, syncID)
		if err != nil {
			s.logger.Error("Failed to get sync history", "sync_id", syncID, "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get sync: %v", err)), nil
		}
		if h == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Sync not found: %s", syncID)), nil
		}
		return s.jsonResult(ListSyncHistoriesOutput{
			Syncs:      []SyncSummary{historyToSummary(h, true)},
			TotalCount: 1,
			Message:    fmt.Sprintf("Sync %s is %s", h.SyncID, h.Status),
		})
	}

	enterprise := req.GetString("enterprise", "")
	if enterprise == "" {
		return mcp.NewToolResultError("enterprise or sync_id parameter is required"), nil
	}
	limit := req.GetInt("limit", services.DefaultHistoryLimit)

	histories, err := s.svc.ListSyncHistories(ctx, enterprise, limit, 0)
	if err != nil {
		s.logger.Error("Failed to list sync histories", "enterprise", enterprise, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list syncs: %v", err)), nil
	}

	summaries := make([]SyncSummary, 0, len(histories))
	for _, h := range histories {
		summaries = append(summaries, historyToSummary(h, false))
	}
	return s.jsonResult(ListSyncHistoriesOutput{
		Syncs:      summaries,
		TotalCount: len(summaries),
		Message:    fmt.Sprintf("Found %d sync runs for %s", len(summaries), enterprise),
	})
}

func cronOutput(enterprise string, cfg *models.CronConfig, message string) CronConfigOutput {
	out := CronConfigOutput{EnterpriseName: enterprise, Message: message}
	if cfg != nil {
		out.Configured = true
		out.Schedule = cfg.Schedule
		out.Enabled = cfg.Enabled
		out.LastRun = cfg.LastRun
		out.NextRun = cfg.NextRun
	}
	return out
}

// handleGetCronConfig implements the get_cron_config tool
func (s *Server) handleGetCronConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enterprise, err := req.RequireString("enterprise")
	if err != nil || enterprise == "" {
		return mcp.NewToolResultError("enterprise parameter is required"), nil
	}

	cfg, err := s.svc.GetCronConfig(ctx, enterprise)
	if err != nil {
		s.logger.Error("Failed to get cron config", "enterprise", enterprise, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get schedule: %v", err)), nil
	}

	message := fmt.Sprintf("No schedule configured for %s", enterprise)
	if cfg != nil {
		message = fmt.Sprintf("Schedule %q is %s", cfg.Schedule, enabledWord(cfg.Enabled))
	}
	return s.jsonResult(cronOutput(enterprise, cfg, message))
}

// handleSetCronConfig implements the set_cron_config tool
func (s *Server) handleSetCronConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enterprise, err := req.RequireString("enterprise")
	if err != nil || enterprise == "" {
		return mcp.NewToolResultError("enterprise parameter is required"), nil
	}
	schedule, err := req.RequireString("schedule")
	if err != nil || strings.TrimSpace(schedule) == "" {
		return mcp.NewToolResultError("schedule parameter is required"), nil
	}
	enabled, err := req.RequireBool("enabled")
	if err != nil {
		return mcp.NewToolResultError("enabled parameter is required"), nil
	}

	cfg, err := s.svc.SetCronConfig(ctx, enterprise, strings.TrimSpace(schedule), enabled)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to set schedule: %v", err)), nil
	}

	s.logger.Info("Cron config updated via MCP", "enterprise", enterprise, "schedule", cfg.Schedule, "enabled", cfg.Enabled)
	return s.jsonResult(cronOutput(enterprise, cfg,
		fmt.Sprintf("Schedule %q is now %s", cfg.Schedule, enabledWord(cfg.Enabled))))
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// handleCheckOrgAccess implements the check_org_access tool
func (s *Server) handleCheckOrgAccess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enterprise, err := req.RequireString("enterprise")
	if err != nil || enterprise == "" {
		return mcp.NewToolResultError("enterprise parameter is required"), nil
	}

	var statuses []*models.OrgAccessStatus
	if req.GetBool("refresh", false) {
		statuses, err = s.svc.CheckAccess(ctx, enterprise, "")
	} else {
		statuses, err = s.svc.ListAccessStatuses(ctx, enterprise)
	}
	if err != nil {
		s.logger.Error("Failed to check organization access", "enterprise", enterprise, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check access: %v", err)), nil
	}

	out := OrgAccessOutput{
		EnterpriseName: enterprise,
		WithAccess:     []string{},
		WithoutAccess:  []OrgAccessInfo{},
	}
	for _, st := range statuses {
		if out.LastChecked == nil || st.LastChecked.After(*out.LastChecked) {
			t := st.LastChecked
			out.LastChecked = &t
		}
		if st.HasAccess {
			out.WithAccess = append(out.WithAccess, st.OrgLogin)
			continue
		}
		info := OrgAccessInfo{Login: st.OrgLogin}
		if st.ErrorMessage != nil {
			info.Error = *st.ErrorMessage
		}
		out.WithoutAccess = append(out.WithoutAccess, info)
	}

	if len(statuses) == 0 {
		out.Message = fmt.Sprintf("No access check recorded for %s; call again with refresh", enterprise)
	} else {
		out.Message = fmt.Sprintf("%d of %d organizations are administrable", len(out.WithAccess), len(statuses))
	}
	return s.jsonResult(out)
}

// handleListMigrations implements the list_migrations tool
func (s *Server) handleListMigrations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := models.MigrationFilter{
		EnterpriseName:   req.GetString("enterprise", ""),
		OrganizationName: req.GetString("organization", ""),
		Limit:            req.GetInt("limit", services.DefaultMigrationLimit),
		Offset:           req.GetInt("offset", 0),
	}
	if raw := req.GetString("state", ""); raw != "" {
		state, ok := models.ParseMigrationState(strings.ToUpper(raw))
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Unknown migration state: %s", raw)), nil
		}
		filter.State = state
	}

	page, err := s.svc.ListMigrations(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list migrations", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list migrations: %v", err)), nil
	}

	out := ListMigrationsOutput{
		Migrations: make([]MigrationSummary, 0, len(page.Migrations)),
		Total:      page.Total,
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	for _, m := range page.Migrations {
		summary := MigrationSummary{
			ID:            m.ProviderID,
			Repository:    m.RepositoryName,
			Organization:  m.OrganizationName,
			State:         string(m.State),
			WarningsCount: m.WarningsCount,
			FailureReason: m.FailureReason,
			CreatedAt:     m.CreatedAt,
			CompletedAt:   m.CompletedAt,
			DurationMs:    m.DurationMs,
		}
		if m.HasSource() {
			summary.MigrationSource = m.Source.Name
		}
		out.Migrations = append(out.Migrations, summary)
	}
	out.Message = fmt.Sprintf("Showing %d of %d migrations", len(out.Migrations), out.Total)

	return s.jsonResult(out)
}

// jsonResult formats data as indented JSON text content
func (s *Server) jsonResult(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
