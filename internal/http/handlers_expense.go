package http

import (
	"net/http"

	"ledger/internal/log"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	loc := s.api.Location()
	filter, err := ParseExpenseFilter(r.URL.Query(), loc)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}

	rows, err := s.api.ListExpenses(r.Context(), filter)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(toExpensesJSON(rows, loc)).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}

	e, err := s.api.GetExpense(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(toExpenseJSON(e, s.api.Location())).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	id, err := s.api.CreateExpense(r.Context(), p.ExpenseDraft())
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(idJSON{ID: id}).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	if err := s.api.UpdateExpense(r.Context(), id, p.ExpenseDraft()); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(idJSON{ID: id}).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err == nil {
		err = s.api.DeleteExpense(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
