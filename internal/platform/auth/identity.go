package auth

import "context"

type Identity struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Master   bool   `json:"master,omitempty"`
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
