package http

import (
	"net/http"
	"strings"

	"mealtrack/internal/core"
	applog "mealtrack/internal/log"
)

// mealsResponse is the body of a day listing.
type mealsResponse struct {
	Date    string            `json:"date"`
	Meals   []core.MealRecord `json:"meals"`
	Loading bool              `json:"loading"`
}

// mutationResponse acknowledges an update or delete.
type mutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// handleListMeals returns the day's meals in display order. The day is fetched
// from the backend when the ledger has never loaded it, or when refresh is set.
func (s *Server) handleListMeals(w http.ResponseWriter, r *http.Request) {
	cal := s.ledger.Calendar()
	date, err := ParseDate(r, cal)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	if _, cached := s.ledger.Cached(date); !cached || ParseBool(r.URL.Query(), "refresh") {
		if err := s.ledger.FetchMealsForDate(r.Context(), date); err != nil {
			ErrorFromErr(err).Write(w)
			return
		}
	}

	NewJSONResponse().Body(mealsResponse{
		Date:    cal.Key(date),
		Meals:   s.ledger.MealsForDate(date),
		Loading: s.ledger.Loading(),
	}).Write(w)
}

func (s *Server) handleCreateMeal(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDate(r, s.ledger.Calendar())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	input, err := DecodeMeal(w, r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	rec, err := s.ledger.CreateMeal(r.Context(), date, input)
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Create meal failed",
			applog.FieldOperation, applog.OpCreate,
			applog.FieldError, err)
		ErrorFromErr(err).Write(w)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/meals/"+s.ledger.Calendar().Key(date)+"/"+rec.ID).
		Body(rec).
		Write(w)
}

func (s *Server) handleUpdateMeal(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDate(r, s.ledger.Calendar())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	input, err := DecodeMeal(w, r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	if err := s.ledger.UpdateMeal(r.Context(), date, id, input); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Update meal failed",
			applog.FieldOperation, applog.OpUpdate,
			applog.FieldMealID, id,
			applog.FieldError, err)
		ErrorFromErr(err).Write(w)
		return
	}
	NewJSONResponse().Body(mutationResponse{Success: true}).Write(w)
}

func (s *Server) handleDeleteMeal(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDate(r, s.ledger.Calendar())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))

	if err := s.ledger.DeleteMeal(r.Context(), date, id); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Delete meal failed",
			applog.FieldOperation, applog.OpDelete,
			applog.FieldMealID, id,
			applog.FieldError, err)
		ErrorFromErr(err).Write(w)
		return
	}
	NewJSONResponse().Body(mutationResponse{Success: true, Message: "deleted"}).Write(w)
}

// stateResponse mirrors the ledger's observable state.
type stateResponse struct {
	UserID  int64    `json:"user_id"`
	Loading bool     `json:"loading"`
	Error   string   `json:"error"`
	Dates   []string `json:"dates"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Body(stateResponse{
		UserID:  s.ledger.UserID(),
		Loading: s.ledger.Loading(),
		Error:   s.ledger.Err(),
		Dates:   s.ledger.Dates(),
	}).Write(w)
}
