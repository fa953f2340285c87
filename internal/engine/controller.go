package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crudkit/internal/instrument"
	"crudkit/internal/metadata"
	"crudkit/internal/store"
)

// UpdatePolicy decides what happens to keys an update may not change.
type UpdatePolicy int

const (
	// Lenient drops non-editable keys.
	Lenient UpdatePolicy = iota
	// Strict rejects the request when it names a non-editable key.
	Strict
)

// SerializeMode decides what happens when a record cannot be serialized.
type SerializeMode int

const (
	// BestEffort logs the failure and returns the raw column values.
	BestEffort SerializeMode = iota
	// StrictSerialize fails the request.
	StrictSerialize
)

// CRUDController is what the router needs from a controller.
type CRUDController interface {
	Create(ctx context.Context, fields map[string]any) error
	ReadSingle(ctx context.Context, pk string) (map[string]any, error)
	ReadList(ctx context.Context, page, size int) ([]map[string]any, error)
	Update(ctx context.Context, pk string, fields map[string]any) error
	Delete(ctx context.Context, pk string) error
	PaginateList(ctx context.Context, page, size int) (*Pagination, error)
	Supports(action string) bool
	Supported() []string
}

// Controller maps CRUD actions onto one model. It keeps no per-request
// state; every call runs in its own session from the provider.
type Controller struct {
	provider store.SessionProvider
	model    *metadata.Model
	name     string

	caps          Capabilities
	required      []string
	location      *time.Location
	log           zerolog.Logger
	filter        FilterFunc
	updatePolicy  UpdatePolicy
	serializeMode SerializeMode
	metrics       *instrument.Metrics
}

var _ CRUDController = (*Controller)(nil)

type options struct {
	name          string
	caps          Capabilities
	required      []string
	timezone      string
	log           zerolog.Logger
	filter        FilterFunc
	updatePolicy  UpdatePolicy
	serializeMode SerializeMode
	metrics       *instrument.Metrics
}

type Option func(o *options)

// WithName sets the resource name used in logs, metrics and error
// messages. Defaults to the model name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithCapabilities sets the permitted actions. Defaults to AllCapabilities.
func WithCapabilities(c Capabilities) Option {
	return func(o *options) { o.caps = c }
}

// WithRequired lists the snake_case fields create must receive.
func WithRequired(fields ...string) Option {
	return func(o *options) { o.required = fields }
}

// WithTimezone sets the IANA zone soft-delete markers and rendered
// timestamps use. Defaults to UTC.
func WithTimezone(name string) Option {
	return func(o *options) { o.timezone = name }
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithFilter(f FilterFunc) Option {
	return func(o *options) { o.filter = f }
}

func WithUpdatePolicy(p UpdatePolicy) Option {
	return func(o *options) { o.updatePolicy = p }
}

func WithSerializeMode(m SerializeMode) Option {
	return func(o *options) { o.serializeMode = m }
}

func WithMetrics(m *instrument.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// NewController validates the configuration against the model.
func NewController(provider store.SessionProvider, model *metadata.Model, opts ...Option) (*Controller, error) {
	if provider == nil {
		return nil, fmt.Errorf("controller: session provider is required")
	}
	if model == nil {
		return nil, fmt.Errorf("controller: model is required")
	}

	o := options{caps: AllCapabilities(), timezone: "UTC", log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = model.Name
	}

	loc, err := time.LoadLocation(o.timezone)
	if err != nil {
		return nil, fmt.Errorf("controller %s: timezone: %w", o.name, err)
	}
	if o.caps.SoftDelete && !model.SupportsSoftDelete() {
		return nil, fmt.Errorf("controller %s: soft delete enabled but model %s has no marker field", o.name, model.Name)
	}
	if o.caps.Create && !model.PrimaryKey.Generated {
		return nil, fmt.Errorf("controller %s: create enabled but primary key of %s is not generated", o.name, model.Name)
	}
	for _, name := range o.required {
		f := model.GetField(name)
		if f == nil || f.IsRelation() {
			return nil, fmt.Errorf("controller %s: required field %q is not a column of %s", o.name, name, model.Name)
		}
	}

	return &Controller{
		provider:      provider,
		model:         model,
		name:          o.name,
		caps:          o.caps,
		required:      o.required,
		location:      loc,
		log:           o.log.With().Str("resource", o.name).Logger(),
		filter:        o.filter,
		updatePolicy:  o.updatePolicy,
		serializeMode: o.serializeMode,
		metrics:       o.metrics,
	}, nil
}

func (c *Controller) Name() string {
	return c.name
}

func (c *Controller) Model() *metadata.Model {
	return c.model
}

// Supports reports whether action is enabled.
func (c *Controller) Supports(action string) bool {
	return c.caps.Allows(action)
}

// Supported lists the HTTP verbs this controller answers.
func (c *Controller) Supported() []string {
	return c.caps.Verbs()
}

// Create inserts a record built from the client's fields.
func (c *Controller) Create(ctx context.Context, fields map[string]any) (err error) {
	defer c.observe(ActionCreate, time.Now(), &err)
	if !c.caps.Create {
		return CapabilityError(ActionCreate, c.Supported())
	}

	values, err := c.prepareCreate(fields)
	if err != nil {
		return err
	}

	err = c.provider.Scope(ctx, func(sess *store.Session) error {
		sess.Add(store.NewRecord(c.model, values))
		return sess.Commit(ctx)
	})
	if err != nil {
		return c.storageFailure(ctx, ActionCreate, err)
	}
	return nil
}

// ReadSingle returns one serialized record. Soft-deleted rows are not found.
func (c *Controller) ReadSingle(ctx context.Context, pk string) (row map[string]any, err error) {
	defer c.observe(ActionRead, time.Now(), &err)
	if !c.caps.Read {
		return nil, CapabilityError(ActionRead, c.Supported())
	}
	key, err := c.model.CoercePK(pk)
	if err != nil {
		return nil, NotFoundError(c.name, pk)
	}

	var rec *store.Record
	err = c.provider.Scope(ctx, func(sess *store.Session) error {
		found, err := c.find(ctx, sess, key)
		if err != nil {
			return err
		}
		sess.Detach(found)
		rec = found
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError(c.name, pk)
	}
	if err != nil {
		return nil, c.storageFailure(ctx, ActionRead, err)
	}
	return c.render(ctx, rec)
}

// ReadList returns one page of serialized records in storage order. Pages
// below 1 are treated as the first page.
func (c *Controller) ReadList(ctx context.Context, page, size int) (rows []map[string]any, err error) {
	defer c.observe("list", time.Now(), &err)
	if !c.caps.Read {
		return nil, CapabilityError(ActionRead, c.Supported())
	}
	size = max(size, 0)
	offset := max(page-1, 0) * size

	var records []*store.Record
	err = c.provider.Scope(ctx, func(sess *store.Session) error {
		found, err := c.baseQuery(sess).Offset(offset).Limit(size).All(ctx)
		if err != nil {
			return err
		}
		for _, rec := range found {
			sess.Detach(rec)
		}
		records = found
		return nil
	})
	if err != nil {
		return nil, c.storageFailure(ctx, "list", err)
	}

	rows = make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row, err := c.render(ctx, rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Update changes the editable fields of an existing record.
func (c *Controller) Update(ctx context.Context, pk string, fields map[string]any) (err error) {
	defer c.observe(ActionUpdate, time.Now(), &err)
	if !c.caps.Update {
		return CapabilityError(ActionUpdate, c.Supported())
	}
	key, err := c.model.CoercePK(pk)
	if err != nil {
		return NotFoundError(c.name, pk)
	}

	err = c.provider.Scope(ctx, func(sess *store.Session) error {
		rec, err := c.find(ctx, sess, key)
		if err != nil {
			return err
		}
		values, err := c.prepareUpdate(fields)
		if err != nil {
			return err
		}
		for _, name := range sortedKeys(values) {
			if err := rec.Set(name, values[name]); err != nil {
				return err
			}
		}
		return sess.Commit(ctx)
	})
	return c.writeOutcome(ctx, ActionUpdate, pk, err)
}

// Delete soft-deletes the record when soft delete is enabled, otherwise
// removes it.
func (c *Controller) Delete(ctx context.Context, pk string) (err error) {
	defer c.observe(ActionDelete, time.Now(), &err)
	if !c.caps.Delete && !c.caps.SoftDelete {
		return CapabilityError(ActionDelete, c.Supported())
	}
	key, err := c.model.CoercePK(pk)
	if err != nil {
		return NotFoundError(c.name, pk)
	}

	err = c.provider.Scope(ctx, func(sess *store.Session) error {
		rec, err := c.find(ctx, sess, key)
		if err != nil {
			return err
		}
		if c.caps.SoftDelete {
			if err := rec.Set(c.model.SoftDelete, time.Now().In(c.location)); err != nil {
				return err
			}
		} else {
			sess.Delete(rec)
		}
		return sess.Commit(ctx)
	})
	return c.writeOutcome(ctx, ActionDelete, pk, err)
}

// find loads a live record by key. With a soft-delete marker on the model,
// marked rows count as missing.
func (c *Controller) find(ctx context.Context, sess *store.Session, key any) (*store.Record, error) {
	if !c.model.SupportsSoftDelete() {
		return sess.Get(ctx, c.model, key)
	}
	return c.baseQuery(sess).WhereEq(c.model.PrimaryKey.Field, key).One(ctx)
}

// baseQuery selects the rows clients can see.
func (c *Controller) baseQuery(sess *store.Session) *store.Query {
	q := sess.Query(c.model)
	if c.model.SupportsSoftDelete() {
		q = q.WhereNull(c.model.SoftDelete)
	}
	return q
}

// render serializes a record and applies the filter hook.
func (c *Controller) render(ctx context.Context, rec *store.Record) (map[string]any, error) {
	row, err := c.Serialize(ctx, rec)
	if err != nil {
		return nil, c.failure(ctx, "serialize", err)
	}
	if c.filter == nil {
		return row, nil
	}
	filtered, err := c.filter(row)
	if err != nil {
		return nil, c.failure(ctx, "filter", err)
	}
	return filtered, nil
}

// writeOutcome maps the error of an update or delete scope.
func (c *Controller) writeOutcome(ctx context.Context, action, pk string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError(c.name, pk)
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return c.storageFailure(ctx, action, err)
}

// storageFailure logs err and hides it behind an opaque InternalError.
func (c *Controller) storageFailure(ctx context.Context, action string, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return c.failure(ctx, action, err)
}

func (c *Controller) failure(ctx context.Context, action string, err error) error {
	c.logger(ctx).Error().
		Str("action", action).
		Str("error_type", fmt.Sprintf("%T", rootCause(err))).
		Err(err).
		Msg("operation failed")
	return InternalError()
}

// logger prefers the request-scoped logger from ctx.
func (c *Controller) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		scoped := l.With().Str("resource", c.name).Logger()
		return &scoped
	}
	return &c.log
}

func (c *Controller) observe(action string, start time.Time, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = "error"
		var appErr *AppError
		if errors.As(*errp, &appErr) {
			outcome = strings.ToLower(appErr.Code)
		}
	}
	c.metrics.ObserveOperation(c.name, action, outcome, time.Since(start))
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
