// ABOUTME: MCP tools for medications, schedules, and dose logs.
// ABOUTME: Already-recorded doses come back as a normal result, not a tool error.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerMedicationTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "add_medication",
		Description: "Add a medication with daily dosing times (HH:MM) and seed its dose schedule",
	}, s.handleAddMedication)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_medications",
		Description: "List medications for a care recipient",
	}, s.handleListMedications)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "delete_medication",
		Description: "Deactivate a medication by ID or ID prefix; its dose history is kept",
	}, s.handleDeleteMedication)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "restock_medication",
		Description: "Set the remaining pill count of a medication",
	}, s.handleRestockMedication)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "extend_schedule",
		Description: "Generate dose logs ahead of time for one medication, or for all active medications when no ID is given",
	}, s.handleExtendSchedule)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_today_doses",
		Description: "List today's scheduled doses with their status",
	}, s.handleListTodayDoses)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mark_taken",
		Description: "Mark a pending dose as taken; decrements tracked stock",
	}, s.handleMarkTaken)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mark_skipped",
		Description: "Mark a pending dose as skipped",
	}, s.handleMarkSkipped)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "low_stock",
		Description: "List active medications whose remaining stock is at or below a threshold",
	}, s.handleLowStock)
}

// Tool input/output types

type addMedicationInput struct {
	RecipientID string   `json:"recipient_id,omitempty" jsonschema:"Care recipient, defaults to the configured recipient"`
	Name        string   `json:"name" jsonschema:"Medication name"`
	Dosage      float64  `json:"dosage" jsonschema:"Amount per dose"`
	DosageUnit  string   `json:"dosage_unit,omitempty" jsonschema:"Dosage unit such as mg or tablet"`
	Times       []string `json:"times" jsonschema:"Daily dosing times in HH:MM"`
	StartDate   string   `json:"start_date,omitempty" jsonschema:"First day (YYYY-MM-DD), defaults to today"`
	EndDate     string   `json:"end_date,omitempty" jsonschema:"Last day (YYYY-MM-DD)"`
	Stock       *int     `json:"stock,omitempty" jsonschema:"Pills on hand; omit to not track stock"`
	Notes       string   `json:"notes,omitempty" jsonschema:"Optional notes"`
}

type medicationOutput struct {
	Medication medicationView `json:"medication"`
	Seeded     int            `json:"seeded,omitempty"`
	Message    string         `json:"message"`
}

type listMedicationsInput struct {
	RecipientID     string `json:"recipient_id,omitempty" jsonschema:"Care recipient, defaults to the configured recipient"`
	IncludeInactive bool   `json:"include_inactive,omitempty" jsonschema:"Include deactivated medications"`
}

type medicationsOutput struct {
	Medications []medicationView `json:"medications"`
	Count       int              `json:"count"`
}

type idInput struct {
	ID string `json:"id" jsonschema:"Record ID or unique ID prefix"`
}

type restockInput struct {
	ID    string `json:"id" jsonschema:"Medication ID or unique ID prefix"`
	Stock int    `json:"stock" jsonschema:"New remaining pill count"`
}

type extendInput struct {
	ID   string `json:"id,omitempty" jsonschema:"Medication ID or prefix; omit to extend every active medication"`
	Days int    `json:"days,omitempty" jsonschema:"Days to generate from today, defaults to the configured horizon"`
}

type extendOutput struct {
	Inserted int    `json:"inserted"`
	Message  string `json:"message"`
}

type recipientInput struct {
	RecipientID string `json:"recipient_id,omitempty" jsonschema:"Care recipient, defaults to the configured recipient"`
}

type dosesOutput struct {
	Date  string     `json:"date"`
	Doses []doseView `json:"doses"`
	Count int        `json:"count"`
}

type doseOutput struct {
	Dose            doseView `json:"dose"`
	AlreadyRecorded bool     `json:"already_recorded,omitempty"`
	Message         string   `json:"message"`
}

type lowStockInput struct {
	RecipientID string `json:"recipient_id,omitempty" jsonschema:"Care recipient, defaults to the configured recipient"`
	Threshold   *int   `json:"threshold,omitempty" jsonschema:"Stock at or below this counts as low, default 5"`
}

// Tool handlers

func (s *Server) handleAddMedication(ctx context.Context, req *mcp.CallToolRequest, input addMedicationInput) (*mcp.CallToolResult, medicationOutput, error) {
	unit := input.DosageUnit
	if unit == "" {
		unit = "tablet"
	}
	m := models.NewMedication(s.recipient(input.RecipientID), input.Name, input.Dosage, unit, input.Times...)

	if input.StartDate != "" {
		t, err := s.parseWhen(input.StartDate)
		if err != nil {
			return nil, medicationOutput{}, err
		}
		m.WithStartDate(t)
	}
	if input.EndDate != "" {
		t, err := s.parseWhen(input.EndDate)
		if err != nil {
			return nil, medicationOutput{}, err
		}
		m.WithEndDate(t)
	}
	if input.Stock != nil {
		m.WithStock(*input.Stock)
	}
	if input.Notes != "" {
		m.WithNotes(input.Notes)
	}

	seeded, err := s.deps.Medications.Create(ctx, m)
	if err != nil {
		return nil, medicationOutput{}, fmt.Errorf("failed to add medication: %w", err)
	}

	return nil, medicationOutput{
		Medication: toMedicationView(m),
		Seeded:     seeded,
		Message: fmt.Sprintf("Added %s %g %s at %s (ID: %s, %d doses scheduled)",
			m.Name, m.Dosage, m.DosageUnit, strings.Join(m.Times, ", "), shortID(m.ID.String()), seeded),
	}, nil
}

func (s *Server) handleListMedications(ctx context.Context, req *mcp.CallToolRequest, input listMedicationsInput) (*mcp.CallToolResult, medicationsOutput, error) {
	meds, err := s.deps.Medications.List(ctx, s.recipient(input.RecipientID), !input.IncludeInactive)
	if err != nil {
		return nil, medicationsOutput{}, fmt.Errorf("failed to list medications: %w", err)
	}
	return nil, medicationsOutput{Medications: toMedicationViews(meds), Count: len(meds)}, nil
}

func (s *Server) handleDeleteMedication(ctx context.Context, req *mcp.CallToolRequest, input idInput) (*mcp.CallToolResult, medicationOutput, error) {
	m, err := s.deps.Medications.Delete(ctx, input.ID)
	if err != nil {
		return nil, medicationOutput{}, fmt.Errorf("failed to delete medication: %w", err)
	}
	return nil, medicationOutput{
		Medication: toMedicationView(m),
		Message:    fmt.Sprintf("Deactivated %s (ID: %s)", m.Name, shortID(m.ID.String())),
	}, nil
}

func (s *Server) handleRestockMedication(ctx context.Context, req *mcp.CallToolRequest, input restockInput) (*mcp.CallToolResult, medicationOutput, error) {
	m, err := s.deps.Medications.Restock(ctx, input.ID, input.Stock)
	if err != nil {
		return nil, medicationOutput{}, fmt.Errorf("failed to restock medication: %w", err)
	}
	return nil, medicationOutput{
		Medication: toMedicationView(m),
		Message:    fmt.Sprintf("%s stock set to %d", m.Name, input.Stock),
	}, nil
}

func (s *Server) handleExtendSchedule(ctx context.Context, req *mcp.CallToolRequest, input extendInput) (*mcp.CallToolResult, extendOutput, error) {
	days := input.Days
	if days <= 0 {
		days = s.deps.HorizonDays
	}

	var (
		n   int
		err error
	)
	if input.ID == "" {
		n, err = s.deps.Medications.ExtendAll(ctx, days)
	} else {
		n, err = s.deps.Medications.ExtendSchedule(ctx, input.ID, s.now().In(s.deps.Location), days)
	}
	if err != nil {
		return nil, extendOutput{}, fmt.Errorf("failed to extend schedule: %w", err)
	}
	return nil, extendOutput{
		Inserted: n,
		Message:  fmt.Sprintf("Scheduled %d new doses over %d days", n, days),
	}, nil
}

func (s *Server) handleListTodayDoses(ctx context.Context, req *mcp.CallToolRequest, input recipientInput) (*mcp.CallToolResult, dosesOutput, error) {
	logs, err := s.deps.Doses.Today(ctx, s.recipient(input.RecipientID))
	if err != nil {
		return nil, dosesOutput{}, fmt.Errorf("failed to list doses: %w", err)
	}
	return nil, dosesOutput{
		Date:  s.now().In(s.deps.Location).Format("2006-01-02"),
		Doses: toDoseViews(logs),
		Count: len(logs),
	}, nil
}

func (s *Server) handleMarkTaken(ctx context.Context, req *mcp.CallToolRequest, input idInput) (*mcp.CallToolResult, doseOutput, error) {
	l, err := s.deps.Doses.MarkTaken(ctx, input.ID)
	return s.doseResult(l, err, "taken")
}

func (s *Server) handleMarkSkipped(ctx context.Context, req *mcp.CallToolRequest, input idInput) (*mcp.CallToolResult, doseOutput, error) {
	l, err := s.deps.Doses.MarkSkipped(ctx, input.ID)
	return s.doseResult(l, err, "skipped")
}

// doseResult turns a lifecycle outcome into tool output. A state conflict is
// reported as "already recorded" rather than as a failure.
func (s *Server) doseResult(l *models.DoseLog, err error, verb string) (*mcp.CallToolResult, doseOutput, error) {
	if errors.Is(err, apperr.ErrStateConflict) {
		out := doseOutput{AlreadyRecorded: true, Message: apperr.Message(err)}
		if l != nil {
			out.Dose = toDoseView(l)
		}
		return nil, out, nil
	}
	if err != nil {
		return nil, doseOutput{}, fmt.Errorf("failed to mark dose %s: %w", verb, err)
	}
	return nil, doseOutput{
		Dose:    toDoseView(l),
		Message: fmt.Sprintf("Marked %s %s for %s", l.MedicationName, verb, l.ScheduledTime.In(s.deps.Location).Format("Jan 2 15:04")),
	}, nil
}

func (s *Server) handleLowStock(ctx context.Context, req *mcp.CallToolRequest, input lowStockInput) (*mcp.CallToolResult, medicationsOutput, error) {
	threshold := s.deps.LowStockThreshold
	if input.Threshold != nil {
		threshold = *input.Threshold
	}
	meds, err := s.deps.Medications.LowStock(ctx, s.recipient(input.RecipientID), threshold)
	if err != nil {
		return nil, medicationsOutput{}, fmt.Errorf("failed to check stock: %w", err)
	}
	return nil, medicationsOutput{Medications: toMedicationViews(meds), Count: len(meds)}, nil
}
