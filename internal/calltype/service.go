package calltype

import (
	"context"
	"log/slog"

	calltypeDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/calltype"
)

type RepositoryAPI interface {
	GetAll(ctx context.Context) ([]*calltypeDatamodel.CallType, error)
	GetByName(ctx context.Context, name string) (*calltypeDatamodel.CallType, error)
	Create(ctx context.Context, ct *calltypeDatamodel.CallType) error
	Deactivate(ctx context.Context, name string) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetAll returns the active catalog.
func (s *Service) GetAll(ctx context.Context) ([]CallTypeResponse, error) {
	rows, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("failed to get call types from repository", "error", err)
		return nil, err
	}

	responses := make([]CallTypeResponse, 0, len(rows))
	for _, row := range rows {
		ct := FromDataModel(row)
		if ct.IsActive {
			responses = append(responses, ct.ToResponse())
		}
	}
	return responses, nil
}

// IsValid reports whether name is an active catalog entry. Lookup failures
// count as invalid and are logged.
func (s *Service) IsValid(ctx context.Context, name string) bool {
	row, err := s.repo.GetByName(ctx, name)
	if err != nil {
		s.logger.Warn("error checking call type validity", "name", name, "error", err)
		return false
	}
	return row != nil && row.IsActive
}

func (s *Service) Create(ctx context.Context, name, description string) (*CallType, error) {
	row := ToDataModel(NewCallType(name, description))
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error("failed to create call type", "name", name, "error", err)
		return nil, err
	}
	return FromDataModel(row), nil
}
