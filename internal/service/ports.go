package service

import (
	"context"
	"time"

	"deal-service/internal/domain"
	"deal-service/internal/search"

	"github.com/google/uuid"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type DealStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Deal, error)
	Insert(ctx context.Context, d *domain.Deal) error
	Update(ctx context.Context, d *domain.Deal) error
	Search(ctx context.Context, f search.Filter, limit, offset int) ([]domain.Deal, int, error)
}

type ContractorStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.DealContractor, error)
	FindByDealAndContractorID(ctx context.Context, dealID uuid.UUID, contractorID string) (*domain.DealContractor, error)
	FindActiveByDealID(ctx context.Context, dealID uuid.UUID) ([]domain.DealContractor, error)
	FindAllByContractorID(ctx context.Context, contractorID string) ([]domain.DealContractor, error)
	Insert(ctx context.Context, c *domain.DealContractor) error
	Update(ctx context.Context, c *domain.DealContractor) error
	ExistsOtherActiveMain(ctx context.Context, dealID, excludeID uuid.UUID) (bool, error)
	CountDealsWithStatus(ctx context.Context, contractorID, status string) (int, error)
	CountOtherMainDeals(ctx context.Context, contractorID string, excludeID uuid.UUID) (int, error)
}

type RoleStore interface {
	FindRole(ctx context.Context, id string) (*domain.ContractorRole, error)
	FindActiveRoles(ctx context.Context, dealContractorID uuid.UUID) ([]domain.ContractorRole, error)
	FindContractorRole(ctx context.Context, id uuid.UUID) (*domain.DealContractorRole, error)
	InsertContractorRole(ctx context.Context, cr *domain.DealContractorRole) error
	UpdateContractorRole(ctx context.Context, cr *domain.DealContractorRole) error
}

type LookupStore interface {
	FindStatus(ctx context.Context, id string) (*domain.DealStatus, error)
	FindType(ctx context.Context, id string) (*domain.DealType, error)
}

type OutboxStore interface {
	Insert(ctx context.Context, m *domain.OutboxMessage) error
	Update(ctx context.Context, m *domain.OutboxMessage) error
	FindUnsent(ctx context.Context) ([]domain.OutboxMessage, error)
	FindCurrentDeal(ctx context.Context, contractorID string) (*domain.Deal, error)
}

// MainBorrowerClient is the contractor service endpoint that keeps the
// main borrower flag. It returns the response status code, 0 when none.
type MainBorrowerClient interface {
	UpdateMainBorrower(ctx context.Context, contractorID string, hasMainDeals bool) (int, error)
}

// MainBorrowerOutbox records a main borrower update inside the caller's
// transaction and delivers it once that transaction has committed.
type MainBorrowerOutbox interface {
	Enqueue(ctx context.Context, contractorID string, hasMainDeals bool, trigger domain.Trigger) (*PendingUpdate, error)
	Deliver(ctx context.Context, p *PendingUpdate) error
}

// StatusCache stores export progress.
type StatusCache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	SAdd(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// FileStore keeps generated export files.
type FileStore interface {
	Save(ctx context.Context, fileName string, data []byte) (string, error)
	URL(ctx context.Context, key string) (string, error)
}

type ExportNotifier interface {
	NotifyExportProgress(ctx context.Context, userID, exportID string, progress float64, stage string) error
	NotifyExportComplete(ctx context.Context, userID, exportID, url, filename string) error
	NotifyExportFailed(ctx context.Context, userID, exportID, errMsg string) error
}
