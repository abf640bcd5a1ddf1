package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	dapi "github.com/voxanalyze/voxy/internal/pkg/drive/api"
	"github.com/voxanalyze/voxy/internal/pkg/test"
	"github.com/voxanalyze/voxy/internal/pkg/test/mocks"
)

func initRenewerTest(t *testing.T) (*Renewer, *mocks.Drive) {
	t.Helper()
	drv := &mocks.Drive{}
	r, err := NewRenewer(&RenewerData{Drive: drv, CallbackURL: "https://cb/webhook/drive",
		CursorFn: func() string { return "pt1" }, Interval: time.Hour})
	require.Nil(t, err)
	return r, drv
}

func TestNewRenewer_Fail(t *testing.T) {
	_, err := NewRenewer(&RenewerData{})
	assert.NotNil(t, err)
	_, err = NewRenewer(&RenewerData{Drive: &mocks.Drive{}, CallbackURL: "https://cb"})
	assert.NotNil(t, err)
}

func TestRenew(t *testing.T) {
	r, drv := initRenewerTest(t)
	drv.On("Watch", mock.Anything, mock.Anything, "https://cb/webhook/drive", "pt1").Return(
		&dapi.Channel{ID: "ch1", ResourceID: "res1"}, nil)

	require.Nil(t, r.Renew(test.Ctx(t)))
	assert.Equal(t, "ch1", r.channel().ID)
	drv.AssertNotCalled(t, "Stop", mock.Anything, mock.Anything, mock.Anything)
}

func TestRenew_StopsOld(t *testing.T) {
	r, drv := initRenewerTest(t)
	r.setChannel(&dapi.Channel{ID: "old", ResourceID: "oldRes"})
	drv.On("Watch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(
		&dapi.Channel{ID: "ch1", ResourceID: "res1"}, nil)
	drv.On("Stop", mock.Anything, "old", "oldRes").Return(nil)

	require.Nil(t, r.Renew(test.Ctx(t)))
	assert.Equal(t, "ch1", r.channel().ID)
	drv.AssertExpectations(t)
}

func TestRenew_StopFailureIgnored(t *testing.T) {
	r, drv := initRenewerTest(t)
	r.setChannel(&dapi.Channel{ID: "old", ResourceID: "oldRes"})
	drv.On("Watch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(
		&dapi.Channel{ID: "ch1", ResourceID: "res1"}, nil)
	drv.On("Stop", mock.Anything, "old", "oldRes").Return(assert.AnError)

	require.Nil(t, r.Renew(test.Ctx(t)))
	assert.Equal(t, "ch1", r.channel().ID)
}

func TestRenew_WatchFails(t *testing.T) {
	r, drv := initRenewerTest(t)
	r.setChannel(&dapi.Channel{ID: "old", ResourceID: "oldRes"})
	drv.On("Watch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError)

	assert.NotNil(t, r.Renew(test.Ctx(t)))
	// old channel kept on failure
	assert.Equal(t, "old", r.channel().ID)
	drv.AssertNotCalled(t, "Stop", mock.Anything, mock.Anything, mock.Anything)
}
