package middleware_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/middleware"
	"github.com/taskgrid/dispatch/internal/model"
)

type nilDerefAdapter struct{}

func (nilDerefAdapter) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p *struct{ X int }
	_ = p.X
	return nil, nil
}

func TestRecoverAdapter_ConvertsPanicToAdapterFailure(t *testing.T) {
	wrapped := middleware.RecoverAdapter(model.JobTypeEmail, nilDerefAdapter{}, nil)

	_, err := wrapped.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	require.Equal(t, apperror.KindAdapterFailure, apperror.KindOf(err))
}
