package oidcflow

import (
	"context"
	"errors"
)

var (
	ErrFlowNotFound = errors.New("authorization flow not found")
	ErrFlowExpired  = errors.New("authorization flow expired")
)

// FlowStore persists suspended authorization flows between the redirect that
// started them and the login/consent submissions that resume them.
// Implementations must return ErrFlowExpired for flows past their deadline
// so callers restart instead of resuming stale state.
type FlowStore interface {
	StoreFlow(ctx context.Context, flow *Flow) error
	GetFlow(ctx context.Context, flowToken string) (*Flow, error)
	UpdateFlow(ctx context.Context, flow *Flow) error
	DeleteFlow(ctx context.Context, flowToken string) error
}
