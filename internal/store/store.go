package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the run history interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateRun(ctx context.Context, run *models.GenerationRun) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.GenerationRun, int, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.GenerationRun, error)
}

// RunFilter narrows and paginates ListRuns. Zero values mean no filter.
type RunFilter struct {
	IndexName string
	Mode      string
	Success   *bool
	Page      int
	Limit     int
}
