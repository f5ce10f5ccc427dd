package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openlegis/legisrag/internal/index"
	apperrors "github.com/openlegis/legisrag/internal/pkg/errors"
)

func TestAskRejectsBadQueries(t *testing.T) {
	svc := NewAssistantService(nil, nil, index.New(8), nil, 5)

	_, err := svc.Ask(context.Background(), "   ")
	require.ErrorIs(t, err, apperrors.ErrInvalid)

	long := make([]byte, maxQueryLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = svc.Ask(context.Background(), string(long))
	require.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestAskRequiresLoadedIndex(t *testing.T) {
	svc := NewAssistantService(nil, nil, index.New(8), nil, 5)
	_, err := svc.Ask(context.Background(), "quais propostas afetam consumidores?")
	require.ErrorIs(t, err, apperrors.ErrIndexUnavailable)

	_, err = svc.Themes(context.Background())
	require.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc := NewAssistantService(nil, nil, index.New(8), nil, 5)
	_, err := svc.Search(context.Background(), "", "", 0)
	require.ErrorIs(t, err, apperrors.ErrInvalid)
}
