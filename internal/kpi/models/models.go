// Package models defines KPI records credited to reviewers.
package models

import (
	"time"

	contentmodels "findiff/internal/content/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
)

type Type string

const (
	TypeHorizontalAudit Type = "horizontal_audit"
	TypeVerticalAudit   Type = "vertical_audit"
	TypeReturnedShuffle Type = "order_returned_shuffle"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeHorizontalAudit, TypeVerticalAudit, TypeReturnedShuffle:
		return true
	}
	return false
}

// TypeForWritingMode picks the audit KPI for the page layout a reviewer
// worked on. Unknown modes count as horizontal.
func TypeForWritingMode(m contentmodels.WritingMode) Type {
	if m == contentmodels.WritingModeVertical {
		return TypeVerticalAudit
	}
	return TypeHorizontalAudit
}

// TriggerStep is the workflow step that produced the record.
type TriggerStep string

const (
	TriggerFirstAudit  TriggerStep = "first_audit"
	TriggerSecondAudit TriggerStep = "second_audit"
	TriggerQA          TriggerStep = "qa"
)

func (s TriggerStep) IsValid() bool {
	return s == TriggerFirstAudit || s == TriggerSecondAudit || s == TriggerQA
}

type Record struct {
	ID          id.KPIID    `json:"id"`
	UserID      id.UserID   `json:"user_id"`
	Type        Type        `json:"type"`
	Count       int         `json:"count"`
	TriggerStep TriggerStep `json:"trigger_step"`
	OrderID     id.OrderID  `json:"order_id"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (r *Record) Validate() error {
	if r.UserID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "kpi record has no user")
	}
	if !r.Type.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown kpi type "+string(r.Type))
	}
	if !r.TriggerStep.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown kpi trigger step "+string(r.TriggerStep))
	}
	return nil
}

// Filter narrows a summary. Zero fields match everything.
type Filter struct {
	Created contentmodels.TimeRange
	UserID  id.UserID
	Search  string
}

func (f Filter) Matches(r *Record) bool {
	if !f.UserID.IsNil() && r.UserID != f.UserID {
		return false
	}
	return f.Created.Contains(r.CreatedAt)
}

// TypeTotal is the summed count of one type for one user.
type TypeTotal struct {
	UserID id.UserID
	Type   Type
	Total  int
}

// SummaryRow is one user's totals by type.
type SummaryRow struct {
	UserID      id.UserID    `json:"user_id"`
	Username    string       `json:"username"`
	Nickname    string       `json:"nickname"`
	DisplayName string       `json:"display_name"`
	Totals      map[Type]int `json:"totals"`
}
