package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/restock"
	"tajautos/backend/internal/store"
)

var tracer = otel.Tracer("tajautos-service")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Invoicer renders the printable receipt for a committed sale.
type Invoicer interface {
	Render(sale domain.Sale) (domain.Invoice, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithInvoicer(invoicer Invoicer) Option {
	return func(s *Service) {
		s.invoicer = invoicer
	}
}

// WithLocation sets the shop time zone used for report and dashboard days.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

type Service struct {
	repo     store.Repository
	advisor  *restock.Advisor
	invoicer Invoicer
	loc      *time.Location
	now      func() time.Time
}

func New(repo store.Repository, advisor *restock.Advisor, opts ...Option) *Service {
	if advisor == nil {
		advisor = restock.NewAdvisor(nil, 0)
	}

	s := &Service{
		repo:    repo,
		advisor: advisor,
		loc:     time.UTC,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// timestamp is the single source of record times: UTC, microsecond precision.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if actor, ok := ActorFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("actor.username", actor.Username))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan closes span, recording err when the operation failed.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return ""
}

func matchesQuery(query string, fields ...string) bool {
	if query == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}
