package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/ozsapka/shop-api/internal/domain/user"
)

type userRequest struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Address  string `json:"address"`
	GenderID string `json:"genderId"`
	CityID   string `json:"cityId"`
}

func (r userRequest) validate() (string, bool) {
	switch {
	case r.Name == "":
		return "name is required", false
	case r.Email == "":
		return "email is required", false
	}
	return "", true
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.users.List(ctx)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, u := range users {
			encodeUser(e, u)
		}
		e.ArrEnd()
	})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, err := h.users.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeUser(e, *u)
	})
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg, ok := req.validate(); !ok {
		writeError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	u := user.User{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Surname:  req.Surname,
		Email:    req.Email,
		Address:  req.Address,
		GenderID: req.GenderID,
		CityID:   req.CityID,
	}
	if err := h.users.Create(ctx, &u); err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeUser(e, u)
	})
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg, ok := req.validate(); !ok {
		writeError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	u := user.User{
		ID:       r.PathValue("id"),
		Name:     req.Name,
		Surname:  req.Surname,
		Email:    req.Email,
		Address:  req.Address,
		GenderID: req.GenderID,
		CityID:   req.CityID,
	}
	if err := h.users.Update(ctx, &u); err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeUser(e, u)
	})
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.users.Delete(ctx, r.PathValue("id")); err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGenders returns the gender reference table.
func (h *Handler) ListGenders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	genders, err := h.refs.ListGenders(ctx)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, g := range genders {
			encodeNamed(e, g.ID, g.Name)
		}
		e.ArrEnd()
	})
}

// ListCities returns the city reference table.
func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cities, err := h.refs.ListCities(ctx)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range cities {
			encodeNamed(e, c.ID, c.Name)
		}
		e.ArrEnd()
	})
}
