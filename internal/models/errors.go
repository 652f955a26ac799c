package models

import "errors"

var (
	// ErrInvalidVolume is returned for missing or non-3D input images.
	ErrInvalidVolume = errors.New("invalid volume")

	// ErrResourceExhausted is returned when a working buffer cannot be allocated.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrNoForeground is returned when no voxel lies above the background threshold.
	ErrNoForeground = errors.New("no voxels above background threshold")

	// ErrEmptySurface is returned when the initial surface encloses no foreground voxel.
	ErrEmptySurface = errors.New("initial surface encloses no foreground voxels")
)
