package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"
	"gospatial/internal"
	apperrors "gospatial/internal/errors"
)

// ResultsReader is the read side of the results store the handler serves
type ResultsReader interface {
	List(ctx context.Context, filter moments.Filter) ([]moments.Record, error)
	Radii(ctx context.Context, params moments.Params) ([]float64, error)
	Runs(ctx context.Context, limit int) ([]moments.RunSummary, error)
}

// ResultsHandler handles read-only result requests
type ResultsHandler struct {
	results ResultsReader
	logger  *internal.Logger
}

// NewResultsHandler creates a new results handler
func NewResultsHandler(results ResultsReader, logger *internal.Logger) *ResultsHandler {
	return &ResultsHandler{
		results: results,
		logger:  internal.OrDefault(logger).With("api"),
	}
}

// FlatRow is one record rendered under its wide column names
type FlatRow struct {
	Group   core.GroupID       `json:"group"`
	RunID   core.RunID         `json:"run_id"`
	Columns map[string]float64 `json:"columns"`
}

// ListResults returns stored summaries matching the query filters
func (h *ResultsHandler) ListResults(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	records, err := h.results.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	if flat, _ := strconv.ParseBool(c.Query("flat")); flat {
		rows := make([]FlatRow, len(records))
		for i, r := range records {
			rows[i] = FlatRow{Group: r.Key.Group, RunID: r.RunID, Columns: r.Flat()}
		}
		c.JSON(http.StatusOK, gin.H{"count": len(rows), "rows": rows})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "records": records})
}

// ListRadii returns the radii stored for one parameter set
func (h *ResultsHandler) ListRadii(c *gin.Context) {
	p1, ok1, err := predicate(c, "p1")
	if err != nil {
		h.fail(c, err)
		return
	}
	p2, ok2, err := predicate(c, "p2")
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok1 || !ok2 {
		h.fail(c, apperrors.InvalidInput("p1_column, p1_value, p2_column and p2_value are required"))
		return
	}

	params := moments.Params{Phenotype1: p1, Phenotype2: p2, Intensity: c.Query("intensity")}
	radii, err := h.results.Radii(c.Request.Context(), params)
	if err != nil {
		h.fail(c, err)
		return
	}
	if radii == nil {
		radii = []float64{}
	}
	c.JSON(http.StatusOK, gin.H{"params": params, "radii": radii})
}

// ListRuns returns recent sweeps, newest first
func (h *ResultsHandler) ListRuns(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		h.fail(c, err)
		return
	}
	runs, err := h.results.Runs(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if runs == nil {
		runs = []moments.RunSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(runs), "runs": runs})
}

// Health reports liveness
func (h *ResultsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ResultsHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": apperrors.GetCode(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound), apperrors.GetCode(err) == apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.GetCode(err) == apperrors.CodeInvalidInput,
		apperrors.GetCode(err) == apperrors.CodeValidationError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// predicate reads {prefix}_column and {prefix}_value; both or neither must be set
func predicate(c *gin.Context, prefix string) (spatial.PhenotypePredicate, bool, error) {
	p := spatial.PhenotypePredicate{Column: c.Query(prefix + "_column"), Value: c.Query(prefix + "_value")}
	switch {
	case p.Column == "" && p.Value == "":
		return p, false, nil
	case p.Column == "" || p.Value == "":
		return p, false, apperrors.InvalidInput(prefix + "_column and " + prefix + "_value must be given together")
	}
	return p, true, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.InvalidInput(name + " must be a non-negative integer")
	}
	return n, nil
}

func parseFilter(c *gin.Context) (moments.Filter, error) {
	var f moments.Filter

	p1, ok, err := predicate(c, "p1")
	if err != nil {
		return f, err
	}
	if ok {
		f.Phenotype1 = &p1
	}
	p2, ok, err := predicate(c, "p2")
	if err != nil {
		return f, err
	}
	if ok {
		f.Phenotype2 = &p2
	}

	if in, ok := c.GetQuery("intensity"); ok {
		f.Intensity = &in
	}
	if raw := c.Query("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return f, apperrors.InvalidInput("radius must be a number")
		}
		f.Radius = &r
	}
	if raw := c.Query("kind"); raw != "" {
		k, err := spatial.ParseStatisticKind(raw)
		if err != nil {
			return f, apperrors.InvalidInput(err.Error())
		}
		f.Kind = &k
	}
	if raw := c.Query("group"); raw != "" {
		g := core.GroupID(raw)
		f.Group = &g
	}
	if raw := c.Query("run_id"); raw != "" {
		id := core.RunID(raw)
		f.RunID = &id
	}

	f.Limit, err = intQuery(c, "limit")
	return f, err
}
