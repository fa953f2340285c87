package engine

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"crudkit/internal/strfunc"
)

// RouterOptions are the defaults shared by every resource mounted on a
// Router.
type RouterOptions struct {
	BasePath        string
	Version         int // 0 leaves the version segment out
	DefaultPageSize int
	MaxPageSize     int
}

// Router mounts controllers at {base_path}/v{version}/{resource}.
type Router struct {
	app  fiber.Router
	opts RouterOptions
}

func NewRouter(app fiber.Router, opts RouterOptions) *Router {
	if opts.DefaultPageSize < 1 {
		opts.DefaultPageSize = 10
	}
	return &Router{app: app, opts: opts}
}

type mountConfig struct {
	basePath   string
	version    int
	listSuffix string
}

type MountOption func(m *mountConfig)

// WithBasePath overrides the router's base path for one resource.
func WithBasePath(p string) MountOption {
	return func(m *mountConfig) { m.basePath = p }
}

// WithVersion overrides the router's version for one resource.
func WithVersion(v int) MountOption {
	return func(m *mountConfig) { m.version = v }
}

// WithListSuffix serves the list at {base}/{suffix} instead of {base}.
func WithListSuffix(suffix string) MountOption {
	return func(m *mountConfig) { m.listSuffix = suffix }
}

// Path returns the normalized base path a resource is mounted at.
func (r *Router) Path(resource string, opts ...MountOption) string {
	return r.mountConfig(opts).path(resource)
}

func (r *Router) mountConfig(opts []MountOption) mountConfig {
	m := mountConfig{basePath: r.opts.BasePath, version: r.opts.Version}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m mountConfig) path(resource string) string {
	if m.version > 0 {
		return strfunc.ProperSlash(fmt.Sprintf("%s/v%d/%s", m.basePath, m.version, resource))
	}
	return strfunc.ProperSlash(m.basePath + "/" + resource)
}

// Mount registers the CRUD routes of ctrl and returns the base path. Every
// verb is routed; the controller refuses the ones it does not support.
func (r *Router) Mount(resource string, ctrl CRUDController, opts ...MountOption) string {
	m := r.mountConfig(opts)
	base := m.path(resource)
	item := base + "/:pk"
	list := base
	if m.listSuffix != "" {
		list = strfunc.ProperSlash(base + "/" + m.listSuffix)
	}

	h := &Handler{
		ctrl:            ctrl,
		defaultPageSize: r.opts.DefaultPageSize,
		maxPageSize:     r.opts.MaxPageSize,
	}

	r.app.Post(base, h.Create)
	r.app.Get(list, h.List)
	r.app.Get(item, h.GetByID)
	r.app.Put(item, h.Update)
	r.app.Patch(item, h.Update)
	r.app.Delete(item, h.Delete)
	r.app.Options(base, h.Options)
	r.app.Options(item, h.Options)
	return base
}
