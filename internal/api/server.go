// Package api serves read-only inspection of the local LoRA inventory.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/lorakit/internal/checkpoint"
	"github.com/samcharles93/lorakit/internal/inventory"
	"github.com/samcharles93/lorakit/internal/lora"
	"github.com/samcharles93/lorakit/internal/version"
)

type ServerConfig struct {
	LorasDir string
	Pipeline *lora.Pipeline
	Store    *InspectionStore
}

type Server struct {
	dir      string
	pipeline *lora.Pipeline
	store    *InspectionStore
	clock    func() time.Time
}

func NewServer(cfg ServerConfig) *Server {
	store := cfg.Store
	if store == nil {
		store = NewInspectionStore(DefaultStoreCapacity)
	}
	pipeline := cfg.Pipeline
	if pipeline == nil {
		pipeline = &lora.Pipeline{Source: checkpoint.Files{}}
	}
	return &Server{
		dir:      cfg.LorasDir,
		pipeline: pipeline,
		store:    store,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)

	e.GET("/v1/loras", s.handleList)
	e.POST("/v1/loras/inspect", s.handleInspect)
	e.GET("/v1/loras/inspections/:id", s.handleGetInspection)
	e.DELETE("/v1/loras/inspections/:id", s.handleDeleteInspection)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: version.String()})
}

func (s *Server) handleList(c *echo.Context) error {
	entries, err := inventory.Discover(s.dir)
	if err != nil {
		return writeServerError(c, err.Error())
	}
	return c.JSON(http.StatusOK, ListResponse{Object: "list", Data: entries})
}

func (s *Server) handleInspect(c *echo.Context) error {
	req, err := decodeJSON[InspectRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return writeBadRequest(c, "name is required")
	}

	path, err := inventory.Resolve(s.dir, name)
	if err != nil {
		return writeErr(c, err)
	}
	loadReq := lora.Request{Path: path, Alpha: req.Alpha}
	if err := loadReq.Validate(); err != nil {
		return writeErr(c, err)
	}
	rep, err := s.pipeline.Prepare(c.Request().Context(), loadReq)
	if err != nil {
		return writeErr(c, err)
	}

	insp := newInspection(name, rep, s.clock())
	s.store.Put(insp)
	return c.JSON(http.StatusOK, insp)
}

func (s *Server) handleGetInspection(c *echo.Context) error {
	id := c.Param("id")
	insp, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "inspection not found")
	}
	return c.JSON(http.StatusOK, insp)
}

func (s *Server) handleDeleteInspection(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "inspection not found")
	}
	return c.JSON(http.StatusOK, DeletedResponse{ID: id, Object: "lora.inspection.deleted", Deleted: true})
}

func newInspection(name string, rep *lora.Report, now time.Time) Inspection {
	pairs := rep.Pairs()
	incomplete := 0
	for _, p := range pairs {
		if !p.Complete() {
			incomplete++
		}
	}
	insp := Inspection{
		ID:            newInspectionID(),
		Object:        "lora.inspection",
		CreatedAt:     now.Unix(),
		Name:          name,
		Format:        checkpoint.DetectFormat(rep.Path).String(),
		Alpha:         rep.Alpha,
		Dialect:       rep.Dialect.String(),
		RawKeys:       rep.RawKeys,
		CanonicalKeys: rep.Output.Keys(),
		Pairs:         pairs,
		Incomplete:    incomplete,
	}
	if insp.CanonicalKeys == nil {
		insp.CanonicalKeys = []string{}
	}
	if err := rep.Err(); err != nil {
		insp.Warning = "key conversion produced no adapter keys; adapter would not be applied"
	}
	return insp
}
