package app

import (
	"context"
	"log/slog"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

// NumberPool owns the virtual numbers and their reservation state.
// Acquire does not reserve; exclusivity comes from SessionRegistry.Create.
type NumberPool struct {
	repo   domain.NumberRepository
	logger *slog.Logger
}

func NewNumberPool(repo domain.NumberRepository, logger *slog.Logger) *NumberPool {
	return &NumberPool{repo: repo, logger: logger.With("component", "number_pool")}
}

// Acquire returns any unreserved number, or ErrPoolExhausted.
func (p *NumberPool) Acquire(ctx context.Context) (*domain.VirtualNumber, error) {
	n, err := p.repo.FindAvailable(ctx)
	if err != nil {
		return nil, err
	}
	p.logger.DebugContext(ctx, "Acquired candidate virtual number", "virtual_number", n.Value)
	return n, nil
}

// Release clears the reservation on number regardless of its current state.
func (p *NumberPool) Release(ctx context.Context, number string) error {
	if err := p.repo.ClearReservation(ctx, number); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "Released virtual number", "virtual_number", number)
	return nil
}

func (p *NumberPool) Add(ctx context.Context, number string) (*domain.VirtualNumber, error) {
	if err := domain.ValidatePhoneIdentifier("value", number); err != nil {
		return nil, err
	}
	n, err := p.repo.Create(ctx, number)
	if err != nil {
		p.logger.InfoContext(ctx, "Did not add virtual number to the pool", "virtual_number", number, "error", err)
		return nil, err
	}
	return n, nil
}

func (p *NumberPool) Remove(ctx context.Context, number string) error {
	if err := domain.ValidatePhoneIdentifier("value", number); err != nil {
		return err
	}
	if err := p.repo.Delete(ctx, number); err != nil {
		p.logger.InfoContext(ctx, "Could not remove virtual number", "virtual_number", number, "error", err)
		return err
	}
	return nil
}

func (p *NumberPool) List(ctx context.Context) (domain.PoolReport, error) {
	numbers, err := p.repo.List(ctx)
	if err != nil {
		return domain.PoolReport{}, err
	}
	return domain.NewPoolReport(numbers), nil
}
