package couriers

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milletlink/milletlink-backend/pkg/config"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/types"
)

type stubGeo struct {
	ids []uuid.UUID
	err error

	gotRadius float64
}

func (s *stubGeo) Nearby(_ context.Context, _ types.Point, radiusKM float64) ([]uuid.UUID, error) {
	s.gotRadius = radiusKM
	return s.ids, s.err
}

type stubBusy struct {
	busy map[uuid.UUID]bool
	err  error
}

func (s *stubBusy) ActivelyDelivering(context.Context) (map[uuid.UUID]bool, error) {
	return s.busy, s.err
}

var testDispatchCfg = config.DispatchConfig{SearchRadiusKM: 10}

func TestCandidatesFiltersBusyCouriersKeepingOrder(t *testing.T) {
	near := uuid.New()
	busy := uuid.New()
	far := uuid.New()

	geo := &stubGeo{ids: []uuid.UUID{near, busy, far}}
	sel := NewSelector(geo, &stubBusy{busy: map[uuid.UUID]bool{busy: true}}, testDispatchCfg, nil)

	got, err := sel.Candidates(context.Background(), types.Point{Lat: 12.97, Lng: 77.59})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{near, far}, got)
	assert.Equal(t, 10.0, geo.gotRadius)
}

func TestCandidatesEmptyIndexIsNotAnError(t *testing.T) {
	sel := NewSelector(&stubGeo{}, &stubBusy{}, testDispatchCfg, nil)

	got, err := sel.Candidates(context.Background(), types.Point{Lat: 12.97, Lng: 77.59})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCandidatesAllBusyYieldsEmpty(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	sel := NewSelector(
		&stubGeo{ids: []uuid.UUID{a, b}},
		&stubBusy{busy: map[uuid.UUID]bool{a: true, b: true}},
		testDispatchCfg, nil,
	)

	got, err := sel.Candidates(context.Background(), types.Point{Lat: 12.97, Lng: 77.59})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCandidatesRejectsInvalidPoint(t *testing.T) {
	sel := NewSelector(&stubGeo{}, &stubBusy{}, testDispatchCfg, nil)

	_, err := sel.Candidates(context.Background(), types.Point{Lat: 120, Lng: 0})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCandidatesWrapsIndexFailure(t *testing.T) {
	sel := NewSelector(&stubGeo{err: errors.New("conn refused")}, &stubBusy{}, testDispatchCfg, nil)

	_, err := sel.Candidates(context.Background(), types.Point{Lat: 12.97, Lng: 77.59})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
