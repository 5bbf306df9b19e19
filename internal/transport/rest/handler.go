package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"deal-service/internal/domain"
	"deal-service/internal/search"
	"deal-service/internal/security"
	"deal-service/internal/service"
	"deal-service/internal/transport/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DealService interface {
	SaveDeal(ctx context.Context, in service.SaveDealInput) (*domain.Deal, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, statusCode string) (*domain.Deal, error)
	GetDealWithContractors(ctx context.Context, id uuid.UUID) (*domain.DealWithContractors, error)
	SearchDeals(ctx context.Context, p search.Payload, roles security.Roles, page, size int) (domain.Page[domain.DealWithContractors], error)
}

type ContractorService interface {
	SaveContractor(ctx context.Context, in service.SaveContractorInput) (*domain.ContractorWithRoles, error)
	DeleteContractor(ctx context.Context, id uuid.UUID) error
	AddRole(ctx context.Context, dealContractorID uuid.UUID, roleID string) (*domain.ContractorWithRoles, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
}

type ExportService interface {
	StartDealsExport(ctx context.Context, p search.Payload, columns []string) (string, error)
	GetExports(ctx context.Context, userID string) ([]service.ExportStatus, error)
	GetExport(ctx context.Context, exportID, userID string) (*service.ExportStatus, error)
}

type FileStore interface {
	Open(fileName string) (path, originalName string, err error)
}

type WebSocketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string)
}

type Handler struct {
	deals       DealService
	contractors ContractorService
	exports     ExportService
	files       FileStore
	ws          WebSocketServer

	validate *validator.Validate
	log      *zap.Logger
}

func NewHandler(
	deals DealService,
	contractors ContractorService,
	exports ExportService,
	files FileStore,
	ws WebSocketServer,
	log *zap.Logger,
) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		deals:       deals,
		contractors: contractors,
		exports:     exports,
		files:       files,
		ws:          ws,
		validate:    validator.New(),
		log:         log.Named("http"),
	}
}

var (
	dealAdmins  = []string{security.RoleSuperuser, security.RoleDealSuperuser}
	dealReaders = []string{
		security.RoleUser,
		security.RoleCreditUser,
		security.RoleOverdraftUser,
		security.RoleDealSuperuser,
		security.RoleContractorRus,
	}
	dealSearchers = []string{
		security.RoleCreditUser,
		security.RoleOverdraftUser,
		security.RoleSuperuser,
		security.RoleDealSuperuser,
	}
)

// InitRouter mounts /health and /files publicly and everything else behind authMiddleware.
func (h *Handler) InitRouter(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(h.log),
		middleware.Recoverer,
	)

	r.Get("/health", h.health)
	if h.files != nil {
		r.Get("/files/{file}", h.serveFile)
	}

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		if h.ws != nil {
			r.Get("/ws", h.serveWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/deal", func(r chi.Router) {
				r.With(auth.RequireAnyRole(dealAdmins...)).Put("/save", h.saveDeal)
				r.With(auth.RequireAnyRole(dealAdmins...)).Patch("/change/status", h.changeStatus)
				r.With(auth.RequireAnyRole(dealSearchers...)).Post("/search", h.searchDeals)
				r.With(auth.RequireAnyRole(dealSearchers...)).Post("/export", h.exportDeals)
				r.With(auth.RequireAnyRole(dealReaders...)).Get("/{id}", h.getDeal)
			})

			r.Route("/deal-contractor", func(r chi.Router) {
				r.Use(auth.RequireAnyRole(dealAdmins...))
				r.Put("/save", h.saveContractor)
				r.Delete("/delete/{id}", h.deleteContractor)
			})

			r.Route("/contractor-to-role", func(r chi.Router) {
				r.Use(auth.RequireAnyRole(dealAdmins...))
				r.Post("/add/{id}", h.addRole)
				r.Delete("/delete/{id}", h.deleteRole)
			})

			r.Route("/export", func(r chi.Router) {
				r.Get("/", h.listExports)
				r.Get("/{export_id}", h.getExport)
			})
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	Success(w, "ok", nil)
}

// decode reads a JSON body into dst and runs struct validation.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		ErrorBadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		ErrorBadRequest(w, err.Error())
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		ErrorBadRequest(w, name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
