package api

import (
	"github.com/albachteng/schedcore/internal/scheduler"
	"github.com/albachteng/schedcore/internal/trigger"
)

type RegisterRequest struct {
	JobID string `json:"job_id"`
	Name  string `json:"name,omitempty"`

	// Work names a run function registered in code at startup.
	Work string `json:"work"`

	Trigger trigger.Spec `json:"trigger"`

	// Timeout is a duration string; empty means no per-run deadline.
	Timeout string `json:"timeout,omitempty"`

	MisfirePolicy string `json:"misfire_policy,omitempty"`
	AllowOverlap  bool   `json:"allow_overlap,omitempty"`
	MaxRetries    int    `json:"max_retries,omitempty"`
}

type RegisterResponse struct {
	EntryID scheduler.EntryID `json:"entry_id"`
	Status  string            `json:"status"`
}
