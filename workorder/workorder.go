// Package workorder is the client for the TechSync work-order endpoints
// and the list model the CLI renders.
package workorder

import (
	"strings"

	"github.com/jmcleod/techsync/internal/util"
	"github.com/jmcleod/techsync/validate"
)

// Status is the lifecycle state of a work order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists the values the server accepts, in display order.
func Statuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}
}

// Valid reports whether s is accepted on write. Unknown values read from
// the server are kept for display but never sent back.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Label is the human form of s, e.g. "in progress".
func (s Status) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// WorkOrder is a job assigned to a technician.
type WorkOrder struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      Status  `json:"status"`
}

// DescriptionText returns the description or "".
func (w WorkOrder) DescriptionText() string {
	if w.Description == nil {
		return ""
	}
	return *w.Description
}

// Input is the body of a create or update.
type Input struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      Status  `json:"status"`
}

// NewInput builds an Input from form values. An empty description becomes
// null and an empty status becomes pending.
func NewInput(title, description string, status Status) Input {
	in := Input{Title: title, Status: status}
	if description != "" {
		in.Description = &description
	}
	return in.normalize()
}

func (in Input) normalize() Input {
	in.Title = util.NormalizeText(in.Title)
	if in.Description != nil {
		d := util.NormalizeText(*in.Description)
		if d == "" {
			in.Description = nil
		} else {
			in.Description = &d
		}
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	return in
}

// Validate checks in after normalisation.
func (in Input) Validate() error {
	in = in.normalize()
	if in.Title == "" {
		return &validate.Error{Field: "title", Message: "Please enter a title"}
	}
	if !in.Status.Valid() {
		return &validate.Error{Field: "status", Message: "Please choose a valid status"}
	}
	return nil
}
