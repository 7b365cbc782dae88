package http

import (
	"net/http"

	"grc-core/internal/dto"
	"grc-core/internal/httpx"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	items, err := h.policies.List(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	out := dto.PolicyList{Items: make([]dto.PolicyView, 0, len(items))}
	for _, p := range items {
		out.Items = append(out.Items, dto.NewPolicyView(p))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePolicyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	p, err := h.policies.Create(r.Context(), mustPrincipal(r), req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dto.NewPolicyView(p))
}

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.policies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.NewPolicyView(p))
}
