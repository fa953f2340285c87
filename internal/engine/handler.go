package engine

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	"crudkit/internal/strfunc"
)

const (
	HeaderPaginationSize     = "X-Pagination-Size"
	HeaderPaginationTotal    = "X-Pagination-Total"
	HeaderPaginationPages    = "X-Pagination-Pages"
	HeaderPaginationNext     = "X-Pagination-Next"
	HeaderPaginationPrevious = "X-Pagination-Previous"
)

// Handler turns HTTP requests for one mounted resource into controller calls.
type Handler struct {
	ctrl            CRUDController
	defaultPageSize int
	maxPageSize     int
}

// Create handles POST {base}
func (h *Handler) Create(c *fiber.Ctx) error {
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	if err := h.ctrl.Create(c.UserContext(), body); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{})
}

// GetByID handles GET {base}/:pk
func (h *Handler) GetByID(c *fiber.Ctx) error {
	row, err := h.ctrl.ReadSingle(c.UserContext(), c.Params("pk"))
	if err != nil {
		return err
	}
	return c.JSON(row)
}

// List handles GET {base} or GET {base}/{list_suffix}
func (h *Handler) List(c *fiber.Ctx) error {
	page, size, err := h.pageParams(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	rows, err := h.ctrl.ReadList(ctx, page, size)
	if err != nil {
		return err
	}
	p, err := h.ctrl.PaginateList(ctx, page, size)
	if err != nil {
		return err
	}
	setPaginationHeaders(c, p)
	return c.JSON(rows)
}

// Update handles PUT and PATCH {base}/:pk
func (h *Handler) Update(c *fiber.Ctx) error {
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	if err := h.ctrl.Update(c.UserContext(), c.Params("pk"), body); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Delete handles DELETE {base}/:pk
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.ctrl.Delete(c.UserContext(), c.Params("pk")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Options handles OPTIONS {base} and {base}/:pk
func (h *Handler) Options(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, strings.Join(h.ctrl.Supported(), ", "))
	return c.SendStatus(fiber.StatusNoContent)
}

// pageParams reads page and size from the query string, ignoring the case
// of the parameter names. Size defaults to the configured page size and is
// capped at the maximum.
func (h *Handler) pageParams(c *fiber.Ctx) (int, int, error) {
	params := c.Queries()
	page, size := 1, h.defaultPageSize

	if v, ok := strfunc.GetParam("page", params); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, ValidationError("page must be an integer", []ErrorDetail{{Field: "page", Message: "must be an integer"}})
		}
		page = n
	}
	if v, ok := strfunc.GetParam("size", params); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, ValidationError("size must be a positive integer", []ErrorDetail{{Field: "size", Message: "must be a positive integer"}})
		}
		size = n
	}
	if h.maxPageSize > 0 && size > h.maxPageSize {
		size = h.maxPageSize
	}
	return page, size, nil
}

func setPaginationHeaders(c *fiber.Ctx, p *Pagination) {
	if p == nil {
		return
	}
	c.Set(HeaderPaginationSize, strconv.Itoa(p.Size))
	c.Set(HeaderPaginationTotal, strconv.FormatInt(p.Total, 10))
	c.Set(HeaderPaginationPages, strconv.FormatInt(p.Pages, 10))
	if p.Next != nil {
		c.Set(HeaderPaginationNext, strconv.Itoa(*p.Next))
	}
	if p.Previous != nil {
		c.Set(HeaderPaginationPrevious, strconv.Itoa(*p.Previous))
	}
}

// parseBody decodes a JSON object body. Empty bodies, malformed JSON and
// non-object values are rejected.
func parseBody(c *fiber.Ctx) (map[string]any, error) {
	raw := c.Body()
	if len(raw) == 0 {
		return nil, ValidationError("request body is empty", nil)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		return nil, ValidationError("request body must be a JSON object", nil)
	}
	return body, nil
}

// ErrorHandler writes AppErrors with their status and hides everything else
// behind an opaque 500.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return respondError(c, appErr)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) && fiberErr.Code < fiber.StatusInternalServerError {
			return respondError(c, NewAppError(statusCode(fiberErr.Code), fiberErr.Code, fiberErr.Message))
		}

		l := zerolog.Ctx(c.UserContext())
		if l.GetLevel() == zerolog.Disabled {
			l = &log
		}
		l.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("unhandled error")
		return respondError(c, InternalError())
	}
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	if len(appErr.Allowed) > 0 {
		c.Set(fiber.HeaderAllow, strings.Join(appErr.Allowed, ", "))
	}
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

// statusCode turns 404 into NOT_FOUND.
func statusCode(status int) string {
	return strings.ToUpper(strings.ReplaceAll(utils.StatusMessage(status), " ", "_"))
}
