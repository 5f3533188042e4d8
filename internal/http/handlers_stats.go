package http

import (
	"errors"
	"net/http"
	"strings"

	"mealtrack/internal/core"
	applog "mealtrack/internal/log"
	"mealtrack/internal/middleware/ratelimit"
	"mealtrack/internal/middleware/security"
	"mealtrack/internal/middleware/trace"
)

var errUnavailable = errors.New("not configured")

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDate(r, s.ledger.Calendar())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	sum, err := s.stats.DaySummary(r.Context(), date)
	if err != nil {
		ErrorFromErr(err).Write(w)
		return
	}
	NewJSONResponse().Body(sum).Write(w)
}

// handleWeek summarizes the week holding {date}. The "start" query names the
// first day of the week, Sunday by default.
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDate(r, s.ledger.Calendar())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	first, err := core.ParseWeekday(r.URL.Query().Get("start"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	week, err := s.stats.Week(r.Context(), date, first)
	if err != nil {
		ErrorFromErr(err).Write(w)
		return
	}
	NewJSONResponse().Body(week).Write(w)
}

// handleCalendar loads every day of {month} and returns its meal counts as
// a grid of whole weeks.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	month, err := ParseMonth(r, s.ledger.Calendar())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	first, err := core.ParseWeekday(r.URL.Query().Get("start"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	from, to := s.ledger.Calendar().MonthBounds(month)
	if err := s.ledger.FetchRange(r.Context(), from, to); err != nil {
		ErrorFromErr(err).Write(w)
		return
	}
	m, err := s.stats.Month(r.Context(), month, first)
	if err != nil {
		ErrorFromErr(err).Write(w)
		return
	}
	NewJSONResponse().Body(m).Write(w)
}

// handleCompare compares the day against the survey averages for an age.
// The age comes from the query, else from the saved session. With
// source=remote the backend performs the comparison itself.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDate(r, s.ledger.Calendar())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	var cmp core.Comparison
	if strings.EqualFold(r.URL.Query().Get("source"), "remote") {
		cmp, err = s.stats.RemoteCompare(r.Context(), date)
	} else {
		age, aerr := ParseAge(r.URL.Query(), s.sessionAge(r))
		if aerr != nil {
			BadRequestError(aerr.Error()).Write(w)
			return
		}
		cmp, err = s.stats.Compare(r.Context(), date, age)
	}
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Compare failed",
			applog.FieldOperation, applog.OpCompare,
			applog.FieldError, err)
		ErrorFromErr(err).Write(w)
		return
	}
	NewJSONResponse().Body(cmp).Write(w)
}

// sessionAge returns the saved age, or -1 when there is none.
func (s *Server) sessionAge(r *http.Request) int {
	if s.sessions == nil {
		return -1
	}
	sess, ok, err := s.sessions.LoadSession(r.Context())
	if err != nil || !ok {
		return -1
	}
	return sess.Age
}

func (s *Server) handleAverages(w http.ResponseWriter, r *http.Request) {
	group := strings.TrimSpace(r.PathValue("group"))
	if group == "" {
		BadRequestError("age group is required").Write(w)
		return
	}
	avgs, err := s.stats.Averages(r.Context(), group)
	if err != nil {
		ErrorFromErr(err).Write(w)
		return
	}
	if avgs == nil {
		avgs = []core.AverageNutrient{}
	}
	NewJSONResponse().Body(avgs).Write(w)
}

// handleScanLabel forwards an uploaded label photo, sent as the multipart
// field "image", to the label scanner.
func (s *Server) handleScanLabel(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		ErrorResponse(http.StatusServiceUnavailable, "label scanning "+errUnavailable.Error()).Write(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		BadRequestError("invalid upload: " + err.Error()).Write(w)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		BadRequestError("missing image file").Write(w)
		return
	}
	defer file.Close()

	scan, err := s.scanner.ScanLabel(r.Context(), file, header.Filename)
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Label scan failed",
			applog.FieldOperation, applog.OpScan,
			applog.FieldError, err)
		ErrorFromErr(err).Write(w)
		return
	}
	NewJSONResponse().Body(scan).Write(w)
}

type metricsResponse struct {
	RateLimit ratelimit.Metrics         `json:"rate_limit"`
	Security  security.DetectionMetrics `json:"security"`
	Requests  trace.Metrics             `json:"requests"`
	Cached    int                       `json:"cached_days"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Body(metricsResponse{
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
		Requests:  s.tracer.GetMetrics(),
		Cached:    len(s.ledger.Dates()),
	}).Write(w)
}
