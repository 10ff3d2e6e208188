// ABOUTME: MCP resource implementations for medtrack.
// ABOUTME: Provides medtrack://today, medtrack://report, and medtrack://low-stock resources.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harperreed/medtrack/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerResources() {
	// medtrack://today - today's dose schedule for the default recipient
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "medtrack://today",
		Name:        "Today's Doses",
		Description: "Doses scheduled today with their status",
		MIMEType:    "application/json",
	}, s.handleTodayResource)

	// medtrack://report - current period report
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "medtrack://report",
		Name:        "Health Report",
		Description: "Adherence, metrics, and narrative for the configured report period",
		MIMEType:    "text/markdown",
	}, s.handleReportResource)

	// medtrack://low-stock - medications running out
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "medtrack://low-stock",
		Name:        "Low Stock",
		Description: "Active medications at or below the low-stock threshold",
		MIMEType:    "application/json",
	}, s.handleLowStockResource)
}

// Resource handlers

func (s *Server) handleTodayResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	logs, err := s.deps.Doses.Today(ctx, s.deps.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list doses: %w", err)
	}

	result := map[string]interface{}{
		"recipient_id": s.deps.RecipientID,
		"date":         s.now().In(s.deps.Location).Format("2006-01-02"),
		"doses":        toDoseViews(logs),
	}
	return jsonResource("medtrack://today", result)
}

func (s *Server) handleReportResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	r, err := s.deps.Reports.Compose(ctx, s.deps.RecipientID, s.deps.ReportPeriodDays)
	if err != nil {
		return nil, fmt.Errorf("failed to compose report: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      "medtrack://report",
				MIMEType: "text/markdown",
				Text:     report.Markdown(r),
			},
		},
	}, nil
}

func (s *Server) handleLowStockResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	meds, err := s.deps.Medications.LowStock(ctx, s.deps.RecipientID, s.deps.LowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to check stock: %w", err)
	}

	result := map[string]interface{}{
		"threshold":   s.deps.LowStockThreshold,
		"medications": toMedicationViews(meds),
	}
	return jsonResource("medtrack://low-stock", result)
}

func jsonResource(uri string, v interface{}) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
