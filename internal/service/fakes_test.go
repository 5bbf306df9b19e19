package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"deal-service/internal/domain"
	"deal-service/internal/search"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memDB is an in-memory stand-in for the postgres repositories.
type memDB struct {
	mu sync.Mutex

	deals       map[uuid.UUID]domain.Deal
	contractors map[uuid.UUID]domain.DealContractor
	roles       map[string]domain.ContractorRole
	links       map[uuid.UUID]domain.DealContractorRole
	statuses    map[string]domain.DealStatus
	types       map[string]domain.DealType

	outbox []domain.OutboxMessage
	nextID int64

	lastFilter search.Filter
}

func newMemDB() *memDB {
	return &memDB{
		deals:       map[uuid.UUID]domain.Deal{},
		contractors: map[uuid.UUID]domain.DealContractor{},
		links:       map[uuid.UUID]domain.DealContractorRole{},
		roles: map[string]domain.ContractorRole{
			"BORROWER": {ID: "BORROWER", Name: "Borrower", Category: domain.RoleCategoryBorrower, Active: true},
			"WARRANTY": {ID: "WARRANTY", Name: "Warranty", Category: domain.RoleCategoryWarranty, Active: true},
			"DRAWER":   {ID: "DRAWER", Name: "Drawer", Category: "DRAWER", Active: true},
		},
		statuses: map[string]domain.DealStatus{
			domain.StatusDraft:  {ID: domain.StatusDraft, Name: "Draft", Active: true},
			domain.StatusActive: {ID: domain.StatusActive, Name: "Active", Active: true},
			domain.StatusClosed: {ID: domain.StatusClosed, Name: "Closed", Active: true},
		},
		types: map[string]domain.DealType{
			domain.TypeCredit:    {ID: domain.TypeCredit, Name: "Credit", Active: true},
			domain.TypeOverdraft: {ID: domain.TypeOverdraft, Name: "Overdraft", Active: true},
			"OTHER":              {ID: "OTHER", Name: "Other", Active: true},
		},
	}
}

func (m *memDB) addDeal(status, typ string) domain.Deal {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.statuses[status]
	d := domain.Deal{ID: uuid.New(), Status: &s, CreateDate: time.Now(), Active: true}
	if typ != "" {
		t := m.types[typ]
		d.Type = &t
	}
	m.deals[d.ID] = d
	return d
}

func (m *memDB) addContractor(dealID uuid.UUID, contractorID string, main bool) domain.DealContractor {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := domain.DealContractor{
		ID:           uuid.New(),
		DealID:       dealID,
		ContractorID: contractorID,
		Name:         "Name " + contractorID,
		INN:          "INN " + contractorID,
		Main:         main,
		CreateDate:   time.Now(),
		Active:       true,
	}
	m.contractors[c.ID] = c
	return c
}

func (m *memDB) addLink(dealContractorID uuid.UUID, roleID string) domain.DealContractorRole {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := domain.DealContractorRole{ID: uuid.New(), DealContractorID: dealContractorID, RoleID: roleID, Active: true}
	m.links[l.ID] = l
	return l
}

func (m *memDB) contractor(id uuid.UUID) domain.DealContractor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contractors[id]
}

func (m *memDB) deal(id uuid.UUID) domain.Deal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deals[id]
}

func (m *memDB) messages() []domain.OutboxMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutboxMessage(nil), m.outbox...)
}

type fakeTx struct{ calls int }

func (t *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fakeDeals struct{ db *memDB }

func (f fakeDeals) FindByID(_ context.Context, id uuid.UUID) (*domain.Deal, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	d, ok := f.db.deals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (f fakeDeals) Insert(_ context.Context, d *domain.Deal) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.deals[d.ID] = *d
	return nil
}

func (f fakeDeals) Update(_ context.Context, d *domain.Deal) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.deals[d.ID]; !ok {
		return domain.ErrNotFound
	}
	f.db.deals[d.ID] = *d
	return nil
}

// Search honours the deny filter and the type list only; predicate
// rendering is covered by the search package.
func (f fakeDeals) Search(_ context.Context, flt search.Filter, limit, offset int) ([]domain.Deal, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.lastFilter = flt
	if flt.Denied() {
		return nil, 0, nil
	}

	types := map[string]bool{}
	for _, a := range flt.Args {
		if s, ok := a.(string); ok {
			if _, known := f.db.types[s]; known {
				types[s] = true
			}
		}
	}

	var all []domain.Deal
	for _, d := range f.db.deals {
		if !d.Active {
			continue
		}
		if len(types) > 0 && (d.Type == nil || !types[d.Type.ID]) {
			continue
		}
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

type fakeContractors struct{ db *memDB }

func (f fakeContractors) FindByID(_ context.Context, id uuid.UUID) (*domain.DealContractor, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.contractors[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (f fakeContractors) FindByDealAndContractorID(_ context.Context, dealID uuid.UUID, contractorID string) (*domain.DealContractor, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, c := range f.db.contractors {
		if c.DealID == dealID && c.ContractorID == contractorID {
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f fakeContractors) FindActiveByDealID(_ context.Context, dealID uuid.UUID) ([]domain.DealContractor, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []domain.DealContractor
	for _, c := range f.db.contractors {
		if c.DealID == dealID && c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractorID < out[j].ContractorID })
	return out, nil
}

func (f fakeContractors) FindAllByContractorID(_ context.Context, contractorID string) ([]domain.DealContractor, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []domain.DealContractor
	for _, c := range f.db.contractors {
		if c.ContractorID == contractorID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f fakeContractors) Insert(_ context.Context, c *domain.DealContractor) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.contractors[c.ID] = *c
	return nil
}

func (f fakeContractors) Update(_ context.Context, c *domain.DealContractor) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.contractors[c.ID]; !ok {
		return domain.ErrNotFound
	}
	f.db.contractors[c.ID] = *c
	return nil
}

func (f fakeContractors) ExistsOtherActiveMain(_ context.Context, dealID, excludeID uuid.UUID) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, c := range f.db.contractors {
		if c.DealID == dealID && c.Main && c.Active && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeContractors) CountDealsWithStatus(_ context.Context, contractorID, status string) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	for _, c := range f.db.contractors {
		if c.ContractorID != contractorID || !c.Active {
			continue
		}
		d := f.db.deals[c.DealID]
		if d.Active && d.StatusID() == status {
			seen[d.ID] = true
		}
	}
	return len(seen), nil
}

func (f fakeContractors) CountOtherMainDeals(_ context.Context, contractorID string, excludeID uuid.UUID) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	for _, c := range f.db.contractors {
		if c.ContractorID != contractorID || c.ID == excludeID || !c.Main || !c.Active {
			continue
		}
		if f.db.deals[c.DealID].Active {
			seen[c.DealID] = true
		}
	}
	return len(seen), nil
}

type fakeRoles struct{ db *memDB }

func (f fakeRoles) FindRole(_ context.Context, id string) (*domain.ContractorRole, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.roles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (f fakeRoles) FindActiveRoles(_ context.Context, dealContractorID uuid.UUID) ([]domain.ContractorRole, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []domain.ContractorRole
	for _, l := range f.db.links {
		if l.DealContractorID == dealContractorID && l.Active {
			out = append(out, f.db.roles[l.RoleID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeRoles) FindContractorRole(_ context.Context, id uuid.UUID) (*domain.DealContractorRole, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	l, ok := f.db.links[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

func (f fakeRoles) InsertContractorRole(_ context.Context, cr *domain.DealContractorRole) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, l := range f.db.links {
		if l.DealContractorID == cr.DealContractorID && l.RoleID == cr.RoleID {
			return domain.ErrConflict
		}
	}
	f.db.links[cr.ID] = *cr
	return nil
}

func (f fakeRoles) UpdateContractorRole(_ context.Context, cr *domain.DealContractorRole) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.links[cr.ID] = *cr
	return nil
}

type fakeLookups struct{ db *memDB }

func (f fakeLookups) FindStatus(_ context.Context, id string) (*domain.DealStatus, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.statuses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (f fakeLookups) FindType(_ context.Context, id string) (*domain.DealType, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.types[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

type fakeOutboxStore struct {
	db *memDB
	// current overrides the deal returned by FindCurrentDeal per contractor.
	current map[string]*domain.Deal
}

func (f *fakeOutboxStore) Insert(_ context.Context, m *domain.OutboxMessage) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.nextID++
	m.ID = f.db.nextID
	f.db.outbox = append(f.db.outbox, *m)
	return nil
}

func (f *fakeOutboxStore) Update(_ context.Context, m *domain.OutboxMessage) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for i := range f.db.outbox {
		if f.db.outbox[i].ID == m.ID {
			f.db.outbox[i] = *m
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeOutboxStore) FindUnsent(_ context.Context) ([]domain.OutboxMessage, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []domain.OutboxMessage
	for i := len(f.db.outbox) - 1; i >= 0; i-- {
		if !f.db.outbox[i].Sent {
			out = append(out, f.db.outbox[i])
		}
	}
	return out, nil
}

func (f *fakeOutboxStore) FindCurrentDeal(_ context.Context, contractorID string) (*domain.Deal, error) {
	if d, ok := f.current[contractorID]; ok {
		return d, nil
	}
	return nil, domain.ErrNotFound
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) UpdateMainBorrower(ctx context.Context, contractorID string, hasMainDeals bool) (int, error) {
	args := m.Called(ctx, contractorID, hasMainDeals)
	return args.Int(0), args.Error(1)
}

type env struct {
	db          *memDB
	tx          *fakeTx
	client      *mockClient
	outboxStore *fakeOutboxStore
	outbox      *OutboxService
	deals       *DealService
	contractors *ContractorService
}

func newEnv() *env {
	db := newMemDB()
	tx := &fakeTx{}
	client := &mockClient{}
	store := &fakeOutboxStore{db: db, current: map[string]*domain.Deal{}}
	outbox := NewOutboxService(store, client, nil)

	return &env{
		db:          db,
		tx:          tx,
		client:      client,
		outboxStore: store,
		outbox:      outbox,
		deals:       NewDealService(tx, fakeDeals{db}, fakeContractors{db}, fakeRoles{db}, fakeLookups{db}, outbox, nil),
		contractors: NewContractorService(tx, fakeDeals{db}, fakeContractors{db}, fakeRoles{db}, outbox, nil),
	}
}
