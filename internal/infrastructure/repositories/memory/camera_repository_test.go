package memory

import (
	"context"
	"testing"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetByID(t *testing.T) {
	repo := NewMemoryCameraRepository([]*domain.CameraConfig{
		{CameraID: "cam-1", Name: "Front Door", Host: "10.0.0.5"},
	})

	camera, err := repo.GetByID(context.Background(), "cam-1")
	require.NoError(t, err)
	assert.Equal(t, "Front Door", camera.Name)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrCameraNotFound)
}

func TestList_SortedByID(t *testing.T) {
	repo := NewMemoryCameraRepository([]*domain.CameraConfig{
		{CameraID: "garden", Host: "10.0.0.7"},
		{CameraID: "front-door", Host: "10.0.0.5"},
	})

	cameras, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, cameras, 2)
	assert.Equal(t, domain.CameraID("front-door"), cameras[0].CameraID)
	assert.Equal(t, domain.CameraID("garden"), cameras[1].CameraID)
}
