package dto

import (
	"time"

	"github.com/cuongbtq/papergen/internal/domain"
)

// GenerateRequest carries base64 encoded documents in submission order
type GenerateRequest struct {
	Files []string `json:"files" binding:"required"`
}

type GenerateResponse struct {
	JobID string `json:"job_id"`
	PDF   string `json:"pdf"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type JobDTO struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	InputCount int    `json:"input_count"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Delivered  bool   `json:"delivered"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type HealthResponse struct {
	Status string         `json:"status"`
	Jobs   map[string]int `json:"jobs"`
}

// ToJobDTO converts a job snapshot to its wire form
func ToJobDTO(s domain.Snapshot) JobDTO {
	return JobDTO{
		JobID:      s.JobID,
		Status:     string(s.Status),
		InputCount: s.InputCount,
		ErrorKind:  string(s.ErrorKind),
		Delivered:  s.Delivered,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  s.UpdatedAt.Format(time.RFC3339),
	}
}
