// ABOUTME: MCP server setup for the medtrack engine.
// ABOUTME: Wraps the MCP server around the medication, dose, reading, and report services.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/medtrack/internal/adherence"
	"github.com/harperreed/medtrack/internal/dose"
	"github.com/harperreed/medtrack/internal/medication"
	"github.com/harperreed/medtrack/internal/report"
	"github.com/harperreed/medtrack/internal/vitals"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// Deps are the services the server exposes.
type Deps struct {
	Medications *medication.Service
	Doses       *dose.Service
	Vitals      *vitals.Service
	Adherence   *adherence.Calculator
	Reports     *report.Composer

	// RecipientID is used when a tool call names no recipient.
	RecipientID       string
	LowStockThreshold int
	ReportPeriodDays  int
	HorizonDays       int
	Location          *time.Location
	Log               zerolog.Logger
}

// Server wraps the MCP server with service access.
type Server struct {
	mcpServer *mcp.Server
	deps      Deps
	log       zerolog.Logger
	now       func() time.Time
}

// NewServer creates a new MCP server over the given services.
func NewServer(d Deps) (*Server, error) {
	if d.Medications == nil || d.Doses == nil || d.Vitals == nil || d.Adherence == nil || d.Reports == nil {
		return nil, errors.New("mcp server needs every service")
	}
	if d.RecipientID == "" {
		d.RecipientID = "default"
	}
	if d.LowStockThreshold <= 0 {
		d.LowStockThreshold = medication.DefaultLowStockThreshold
	}
	if d.ReportPeriodDays <= 0 {
		d.ReportPeriodDays = report.DefaultPeriodDays
	}
	if d.HorizonDays <= 0 {
		d.HorizonDays = 7
	}
	if d.Location == nil {
		d.Location = time.Local
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "medtrack",
			Version: Version,
		},
		nil,
	)

	s := &Server{
		mcpServer: mcpServer,
		deps:      d,
		log:       d.Log.With().Str("component", "mcp").Logger(),
		now:       time.Now,
	}

	s.registerMedicationTools()
	s.registerHealthTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info().Str("recipient_id", s.deps.RecipientID).Msg("mcp server listening on stdio")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// recipient returns id or the configured default.
func (s *Server) recipient(id string) string {
	if id != "" {
		return id
	}
	return s.deps.RecipientID
}

// parseWhen accepts RFC 3339, "2006-01-02 15:04", or a bare date in the
// server's location. An empty string yields the zero time.
func (s *Server) parseWhen(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, v, s.deps.Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q (use RFC 3339, YYYY-MM-DD HH:MM, or YYYY-MM-DD)", v)
}
