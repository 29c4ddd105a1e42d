package handler

import (
	"log/slog"

	"github.com/cuongbtq/papergen/internal/domain"
	"github.com/cuongbtq/papergen/internal/gateway"
)

// JobReader exposes live job state to the status endpoints
type JobReader interface {
	Get(jobID string) (domain.Snapshot, error)
	Stats() map[domain.Status]int
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Gateway *gateway.Service
	Jobs    JobReader
}

// JobHandler handles generation HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	gateway *gateway.Service
	jobs    JobReader
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		gateway: deps.Gateway,
		jobs:    deps.Jobs,
	}
}
