package rest

import (
	"net/http"
)

func (h *Handler) saveContractor(w http.ResponseWriter, r *http.Request) {
	var req SaveContractorRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.contractors.SaveContractor(r.Context(), req.toInput())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	Success(w, "", newContractorResponse(c))
}

func (h *Handler) deleteContractor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.contractors.DeleteContractor(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}

	NoContent(w)
}

func (h *Handler) addRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req RoleRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.contractors.AddRole(r.Context(), id, req.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	Success(w, "", newContractorResponse(c))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.contractors.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}

	NoContent(w)
}
