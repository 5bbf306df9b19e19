package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"deal-service/internal/domain"
	"deal-service/internal/search"
	"deal-service/internal/security"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	exportType       = "deals"
	exportSheet      = "Deals"
	exportPageSize   = 500
	defaultExportTTL = 24 * time.Hour

	dateLayout     = "02-01-2006"
	dateTimeLayout = "02-01-2006 15:04:05"
)

// DealSearcher runs a role-scoped deal search.
type DealSearcher interface {
	SearchDeals(ctx context.Context, p search.Payload, roles security.Roles, page, size int) (domain.Page[domain.DealWithContractors], error)
}

type ExportStatus struct {
	Key      string    `json:"key"`
	Type     string    `json:"type"`
	UserID   string    `json:"user_id"`
	Filters  any       `json:"filters"`
	Columns  []string  `json:"columns"`
	Progress float64   `json:"progress"`
	FileURL  *string   `json:"file_url"`
	Error    *string   `json:"error,omitempty"`
	Created  time.Time `json:"created_at"`
}

type DealColumn struct {
	Header string
	Value  func(d domain.DealWithContractors) any
}

var dealColumns = map[string]DealColumn{
	"id": {
		Header: "ID",
		Value:  func(d domain.DealWithContractors) any { return d.ID.String() },
	},
	"description": {
		Header: "Description",
		Value:  func(d domain.DealWithContractors) any { return strValue(d.Description) },
	},
	"agreement_number": {
		Header: "Agreement number",
		Value:  func(d domain.DealWithContractors) any { return strValue(d.AgreementNumber) },
	},
	"agreement_date": {
		Header: "Agreement date",
		Value:  func(d domain.DealWithContractors) any { return timeValue(d.AgreementDate, dateLayout) },
	},
	"agreement_start_dt": {
		Header: "Agreement start",
		Value:  func(d domain.DealWithContractors) any { return timeValue(d.AgreementStartDt, dateTimeLayout) },
	},
	"availability_date": {
		Header: "Availability date",
		Value:  func(d domain.DealWithContractors) any { return timeValue(d.AvailabilityDate, dateLayout) },
	},
	"type": {
		Header: "Type",
		Value: func(d domain.DealWithContractors) any {
			if d.Type == nil {
				return ""
			}
			return d.Type.Name
		},
	},
	"status": {
		Header: "Status",
		Value: func(d domain.DealWithContractors) any {
			if d.Status == nil {
				return ""
			}
			return d.Status.Name
		},
	},
	"sum": {
		Header: "Sum",
		Value: func(d domain.DealWithContractors) any {
			if d.Sum == nil {
				return ""
			}
			return d.Sum.InexactFloat64()
		},
	},
	"close_dt": {
		Header: "Close date",
		Value:  func(d domain.DealWithContractors) any { return timeValue(d.CloseDt, dateTimeLayout) },
	},
	"main_borrower": {
		Header: "Main borrower",
		Value: func(d domain.DealWithContractors) any {
			for _, c := range d.Contractors {
				if c.Main {
					return c.Name
				}
			}
			return ""
		},
	},
	"contractors": {
		Header: "Contractors",
		Value: func(d domain.DealWithContractors) any {
			parts := make([]string, 0, len(d.Contractors))
			for _, c := range d.Contractors {
				parts = append(parts, fmt.Sprintf("%s (%s)", c.Name, c.INN))
			}
			return strings.Join(parts, "; ")
		},
	},
}

var defaultExportColumns = []string{"agreement_number", "agreement_date", "type", "status", "sum", "main_borrower"}

func strValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func timeValue(p *time.Time, layout string) string {
	if p == nil {
		return ""
	}
	return p.Format(layout)
}

type ExportService struct {
	deals  DealSearcher
	cache  StatusCache
	files  FileStore
	notify ExportNotifier
	log    *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewExportService(
	deals DealSearcher,
	cache StatusCache,
	files FileStore,
	notify ExportNotifier,
	ttl time.Duration,
	log *zap.Logger,
) *ExportService {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultExportTTL
	}
	return &ExportService{
		deals:  deals,
		cache:  cache,
		files:  files,
		notify: notify,
		log:    log.Named("export"),
		ttl:    ttl,
		now:    time.Now,
	}
}

func userExportsKey(userID string) string {
	return "exports:user:" + userID
}

// StartDealsExport validates the requested columns and builds the report in
// the background. Progress is tracked under the returned export id.
func (s *ExportService) StartDealsExport(ctx context.Context, p search.Payload, columns []string) (string, error) {
	principal, ok := security.FromContext(ctx)
	if !ok {
		return "", fmt.Errorf("%w: no caller", domain.ErrValidation)
	}

	if len(columns) == 0 {
		columns = defaultExportColumns
	}
	for _, c := range columns {
		if _, ok := dealColumns[c]; !ok {
			return "", fmt.Errorf("%w: unknown column %q", domain.ErrValidation, c)
		}
	}

	status := &ExportStatus{
		Key:     "exports:" + uuid.NewString(),
		Type:    exportType,
		UserID:  principal.UserID,
		Filters: p,
		Columns: columns,
		Created: s.now(),
	}
	if err := s.saveStatus(ctx, status); err != nil {
		return "", fmt.Errorf("save export status: %w", err)
	}

	go s.runDealsExport(context.WithoutCancel(ctx), status, p, principal.Roles)

	return status.Key, nil
}

func (s *ExportService) runDealsExport(ctx context.Context, status *ExportStatus, p search.Payload, roles security.Roles) {
	log := s.log.With(zap.String("export_id", status.Key), zap.String("user_id", status.UserID))

	if err := s.buildAndStore(ctx, status, p, roles); err != nil {
		log.Error("export failed", zap.Error(err))
		msg := err.Error()
		status.Error = &msg
		_ = s.saveStatus(ctx, status)
		_ = s.notify.NotifyExportFailed(ctx, status.UserID, status.Key, msg)
		return
	}
	log.Info("export finished")
}

func (s *ExportService) buildAndStore(ctx context.Context, status *ExportStatus, p search.Payload, roles security.Roles) error {
	cols := make([]DealColumn, 0, len(status.Columns))
	for _, key := range status.Columns {
		cols = append(cols, dealColumns[key])
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return err
	}
	_ = f.SetDocProps(&excelize.DocProperties{Creator: status.UserID})

	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, col.Header); err != nil {
			return err
		}
	}

	row := 2
	for page := 0; ; page++ {
		result, err := s.deals.SearchDeals(ctx, p, roles, page, exportPageSize)
		if err != nil {
			return fmt.Errorf("search deals: %w", err)
		}

		for _, d := range result.Content {
			for i, col := range cols {
				cell, _ := excelize.CoordinatesToCellName(i+1, row)
				if err := f.SetCellValue(exportSheet, cell, col.Value(d)); err != nil {
					return err
				}
			}
			row++
		}

		done := row - 2
		if result.TotalElements > 0 {
			// 100 is reserved for the moment the file url is ready.
			status.Progress = math.Min(95, math.Round(float64(done)/float64(result.TotalElements)*100))
			_ = s.saveStatus(ctx, status)
			_ = s.notify.NotifyExportProgress(ctx, status.UserID, status.Key, status.Progress, "generating")
		}

		if len(result.Content) == 0 || page+1 >= result.TotalPages() {
			break
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("render xlsx: %w", err)
	}

	fileName := fmt.Sprintf("deals_%s.xlsx", s.now().Format("20060102_150405"))

	_ = s.notify.NotifyExportProgress(ctx, status.UserID, status.Key, 95, "uploading")
	key, err := s.files.Save(ctx, fileName, buf.Bytes())
	if err != nil {
		return fmt.Errorf("store file: %w", err)
	}
	url, err := s.files.URL(ctx, key)
	if err != nil {
		return fmt.Errorf("file url: %w", err)
	}

	status.FileURL = &url
	status.Progress = 100
	if err := s.saveStatus(ctx, status); err != nil {
		return fmt.Errorf("save export status: %w", err)
	}

	_ = s.notify.NotifyExportProgress(ctx, status.UserID, status.Key, 100, "ready")
	_ = s.notify.NotifyExportComplete(ctx, status.UserID, status.Key, url, fileName)
	return nil
}

func (s *ExportService) saveStatus(ctx context.Context, st *ExportStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, st.Key, string(data), s.ttl); err != nil {
		return err
	}
	return s.cache.SAdd(ctx, userExportsKey(st.UserID), st.Key)
}

// GetExports lists the caller's unexpired exports, newest first.
func (s *ExportService) GetExports(ctx context.Context, userID string) ([]ExportStatus, error) {
	keys, err := s.cache.SMembers(ctx, userExportsKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get export keys: %w", err)
	}

	statuses := make([]ExportStatus, 0, len(keys))
	for _, key := range keys {
		st, err := s.load(ctx, key)
		if err != nil || st.UserID != userID {
			continue
		}
		statuses = append(statuses, *st)
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})
	return statuses, nil
}

func (s *ExportService) GetExport(ctx context.Context, exportID, userID string) (*ExportStatus, error) {
	st, err := s.load(ctx, exportID)
	if err != nil {
		return nil, err
	}
	if st.UserID != userID {
		return nil, fmt.Errorf("export %s: %w", exportID, domain.ErrNotFound)
	}
	return st, nil
}

func (s *ExportService) load(ctx context.Context, key string) (*ExportStatus, error) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", key, errors.Join(domain.ErrNotFound, err))
	}

	var st ExportStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to parse export status: %w", err)
	}
	return &st, nil
}
