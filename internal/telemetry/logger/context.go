package logger

import "context"

type scopeKey struct{}

// scope is the per-request logging state. Each With* call copies it, so a
// context never observes changes made further down the chain.
type scope struct {
	log       Logger
	requestID string
	attrs     []any
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func (s scope) into(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithLogger sets the logger used by L for ctx and its children.
func WithLogger(ctx context.Context, l Logger) context.Context {
	s := scopeFrom(ctx)
	s.log = l
	return s.into(ctx)
}

// FromContext returns the logger installed by WithLogger, or Default.
func FromContext(ctx context.Context) Logger {
	if l := scopeFrom(ctx).log; l != nil {
		return l
	}
	return Default()
}

// WithRequestID tags ctx with the id echoed in responses and audit records.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	s := scopeFrom(ctx)
	s.requestID = requestID
	return s.into(ctx)
}

// RequestIDFromContext returns the request id, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	return scopeFrom(ctx).requestID
}

// WithAttrs appends key/value pairs that L adds to every record logged
// under ctx.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	s := scopeFrom(ctx)
	attrs := make([]any, 0, len(s.attrs)+len(args))
	s.attrs = append(append(attrs, s.attrs...), args...)
	return s.into(ctx)
}

// L returns the request logger carrying the request id and any WithAttrs
// pairs.
func L(ctx context.Context) Logger {
	s := scopeFrom(ctx)
	l := FromContext(ctx)
	if s.requestID != "" {
		l = l.With("request_id", s.requestID)
	}
	if len(s.attrs) > 0 {
		l = l.With(s.attrs...)
	}
	return l
}
