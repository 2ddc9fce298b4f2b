package http

import (
	"net/http"

	"ledger/internal/log"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.api.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(toCategoriesJSON(cats, s.api.Location())).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	cat, err := s.api.CreateCategory(r.Context(), p.Get("name"), p.Get("color"))
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Body(toCategoryJSON(cat, s.api.Location())).
		Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err == nil {
		err = s.api.DeleteCategory(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
