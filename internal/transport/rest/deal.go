package rest

import (
	"net/http"
	"strconv"

	"deal-service/internal/security"
)

func (h *Handler) saveDeal(w http.ResponseWriter, r *http.Request) {
	var req SaveDealRequest
	if !h.decode(w, r, &req) {
		return
	}

	deal, err := h.deals.SaveDeal(r.Context(), req.toInput())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	Success(w, "", newDealResponse(deal))
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req ChangeStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	deal, err := h.deals.ChangeStatus(r.Context(), req.ID, req.Status.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	Success(w, "", newDealResponse(deal))
}

func (h *Handler) getDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	deal, err := h.deals.GetDealWithContractors(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	Success(w, "", newDealWithContractorsResponse(deal))
}

func (h *Handler) searchDeals(w http.ResponseWriter, r *http.Request) {
	var req SearchDealRequest
	if !h.decode(w, r, &req) {
		return
	}

	page, err := queryInt(r, "page", 0)
	if err != nil {
		ErrorBadRequest(w, "page must be an integer")
		return
	}
	size, err := queryInt(r, "size", 0)
	if err != nil {
		ErrorBadRequest(w, "size must be an integer")
		return
	}

	p, _ := security.FromContext(r.Context())

	result, err := h.deals.SearchDeals(r.Context(), req.toPayload(), p.Roles, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := PageResponse[DealResponse]{
		Content:       make([]DealResponse, 0, len(result.Content)),
		Page:          result.Page,
		Size:          result.Size,
		TotalElements: result.TotalElements,
		TotalPages:    result.TotalPages(),
	}
	for i := range result.Content {
		resp.Content = append(resp.Content, newDealWithContractorsResponse(&result.Content[i]))
	}

	Success(w, "", resp)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
