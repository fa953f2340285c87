package admin

import (
	"github.com/gofiber/fiber/v2"

	"crudkit/internal/engine"
	"crudkit/internal/metadata"
)

// Resource describes one mounted controller.
type Resource struct {
	Name    string   `json:"name"`
	Model   string   `json:"model"`
	Path    string   `json:"path"`
	Methods []string `json:"methods"`
}

// Handler serves read-only introspection of the loaded models and the
// resources mounted on them.
type Handler struct {
	registry  *metadata.Registry
	resources []Resource
}

func NewHandler(reg *metadata.Registry) *Handler {
	return &Handler{registry: reg}
}

// AddResource records a mounted controller. Call it before serving.
func (h *Handler) AddResource(name, path string, ctrl *engine.Controller) {
	h.resources = append(h.resources, Resource{
		Name:    name,
		Model:   ctrl.Model().Name,
		Path:    path,
		Methods: ctrl.Supported(),
	})
}

func RegisterAdminRoutes(app fiber.Router, h *Handler) {
	admin := app.Group("/_admin")

	admin.Get("/models", h.ListModels)
	admin.Get("/models/:name", h.GetModel)
	admin.Get("/resources", h.ListResources)
}

func (h *Handler) ListModels(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.AllModels()})
}

func (h *Handler) GetModel(c *fiber.Ctx) error {
	name := c.Params("name")
	m := h.registry.GetModel(name)
	if m == nil {
		return engine.NewAppError("NOT_FOUND", fiber.StatusNotFound, "model not found: "+name)
	}
	return c.JSON(fiber.Map{"data": m})
}

func (h *Handler) ListResources(c *fiber.Ctx) error {
	resources := h.resources
	if resources == nil {
		resources = []Resource{}
	}
	return c.JSON(fiber.Map{"data": resources})
}
