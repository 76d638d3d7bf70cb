package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxPrincipal ctxKey = iota
	ctxRole
)

var (
	ErrNoPrincipal = errors.New("principal not in context")
	ErrNoRole      = errors.New("role not in context")
)

// WithIdentity stores the resolved caller. Services read it only through UserID and Role.
func WithIdentity(ctx context.Context, principal, role string) context.Context {
	ctx = context.WithValue(ctx, ctxPrincipal, principal)
	return context.WithValue(ctx, ctxRole, role)
}

func UserID(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxPrincipal).(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoPrincipal
}

func Role(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxRole).(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoRole
}
