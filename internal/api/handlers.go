package api

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/batch"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/converter"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/preview"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/store"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

var requiredKeys = map[string]bool{"E0f": true, "concT": true, "dElectrode": true, "DX": true}

type outcomeView struct {
	Input   string `json:"input"`
	Output  string `json:"output,omitempty"`
	Outcome string `json:"outcome"`
	Ext     string `json:"ext,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newOutcomeView(o types.Outcome) outcomeView {
	v := outcomeView{
		Input:   filepath.Base(o.Input),
		Outcome: o.Kind.String(),
		Ext:     o.Ext,
	}
	if o.Output != "" {
		v.Output = filepath.Base(o.Output)
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

func paramsFromForm(c *fiber.Ctx) (params.Set, error) {
	var set params.Set
	for _, key := range params.Keys {
		raw := c.FormValue(key)
		if raw == "" {
			if requiredKeys[key] {
				return set, fmt.Errorf("%w: %s is required", params.ErrInvalidParameter, key)
			}
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return set, fmt.Errorf("%w: %s: %q is not a number", params.ErrInvalidParameter, key, raw)
		}
		set, _ = set.With(key, v)
	}
	return set, set.Validate()
}

func (s *server) convert(c *fiber.Ctx) error {
	dir, err := types.ParseDirection(c.FormValue("direction", "dimensionless"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid direction", err)
	}
	set, err := paramsFromForm(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid parameters", err)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Multipart form is required", err)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return errorResponse(c, fiber.StatusBadRequest, "At least one file is required", nil)
	}

	jobID := uuid.New().String()
	jobDir := filepath.Join(s.workdir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to create job directory", err)
	}

	paths := make([]string, 0, len(files))
	for _, fh := range files {
		path := filepath.Join(jobDir, filepath.Base(fh.Filename))
		if err := c.SaveFile(fh, path); err != nil {
			return errorResponse(c, fiber.StatusInternalServerError, "Failed to save file", err)
		}
		paths = append(paths, path)
	}

	started := time.Now()
	run, err := s.runner.Submit(c.UserContext(), batch.Job{Paths: paths, Direction: dir, Params: set})
	if err != nil {
		os.RemoveAll(jobDir)
		if errors.Is(err, batch.ErrBusy) {
			return errorResponse(c, fiber.StatusConflict, "A conversion is already running", err)
		}
		return errorResponse(c, fiber.StatusBadRequest, "Invalid job", err)
	}
	outcomes, err := run.Wait()
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Conversion failed", err)
	}

	if s.history != nil {
		if _, err := s.history.RecordRun(c.UserContext(), store.RunRecord{
			JobID:     jobID,
			StartedAt: started,
			EndedAt:   time.Now(),
			Direction: dir.String(),
			Params:    set,
		}, outcomes); err != nil {
			s.log.WithError(err).WithField("job_id", jobID).Error("failed to record run history")
		}
	}

	views := make([]outcomeView, 0, len(outcomes))
	for _, o := range outcomes {
		views = append(views, newOutcomeView(o))
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"job_id":   jobID,
		"outcomes": views,
	})
}

func (s *server) download(c *fiber.Ctx) error {
	jobID := c.Params("job")
	if _, err := uuid.Parse(jobID); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid job id", err)
	}
	name := c.Params("name")
	if name == "" || filepath.Base(name) != name {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid file name", nil)
	}

	path := filepath.Join(s.workdir, jobID, name)
	if _, err := os.Stat(path); err != nil {
		return errorResponse(c, fiber.StatusNotFound, "File not found", nil)
	}
	return c.Download(path, name)
}

type seriesView struct {
	Label string    `json:"label"`
	X     []float64 `json:"x"`
	Y     []float64 `json:"y"`
}

func (s *server) preview(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "File is required", err)
	}

	if err := os.MkdirAll(s.workdir, 0o755); err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to create work directory", err)
	}
	tmpDir, err := os.MkdirTemp(s.workdir, "preview-")
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to create temp directory", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, filepath.Base(fh.Filename))
	if err := c.SaveFile(fh, path); err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to save file", err)
	}

	series, err := preview.Load(path)
	if err != nil {
		status := fiber.StatusBadRequest
		if errors.Is(err, converter.ErrUnsupportedFormat) {
			status = fiber.StatusUnsupportedMediaType
		}
		return errorResponse(c, status, "Failed to read file", err)
	}

	views := make([]seriesView, 0, len(series))
	for _, sr := range series {
		views = append(views, seriesView{Label: sr.Label, X: sr.X, Y: sr.Y})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"title":   preview.Title,
		"x_label": "Potential",
		"y_label": "Flux",
		"series":  views,
	})
}

func (s *server) listHistory(c *fiber.Ctx) error {
	last := c.QueryInt("last", 20)
	if s.history == nil {
		return c.JSON(fiber.Map{"success": true, "runs": []store.RunRecord{}})
	}
	runs, err := s.history.ListRuns(c.UserContext(), last)
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve history", err)
	}
	return c.JSON(fiber.Map{"success": true, "runs": runs})
}
