package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainextract/internal/models"
	"brainextract/pkg/config"
	"brainextract/pkg/extraction"
	"brainextract/pkg/volumeio"
)

func cubeVolume() *models.Volume {
	v := models.NewVolume(24, 24, 24)
	v.Orientation = models.Axial
	for z := 4; z < 20; z++ {
		for y := 4; y < 20; y++ {
			for x := 4; x < 20; x++ {
				v.Data[v.Index(x, y, z)] = 300
			}
		}
	}
	v.CalcMinMax()
	return v
}

func runExtraction(t *testing.T, cfg *config.Config, v *models.Volume) *extraction.Result {
	params, err := extraction.ParamsFromConfig(cfg)
	require.NoError(t, err)
	params.Verbose = false
	res, err := extraction.NewExtractor(params).Process(context.Background(), v)
	require.NoError(t, err)
	return res
}

func TestSaveOutputsExtractToMask(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Extraction.JustEllipse = true
	cfg.Extraction.UseSphere = true
	cfg.Extraction.Subdivision = 3
	cfg.Extraction.ExtractToMask = true
	cfg.Output.MaskFile = filepath.Join(dir, "mask.npy")

	v := cubeVolume()
	res := runExtraction(t, cfg, v)
	require.NotNil(t, res.Selection)
	require.NoError(t, saveOutputs(cfg, v, res))

	saved, err := volumeio.ReadNpy(cfg.Output.MaskFile)
	require.NoError(t, err)
	assert.Equal(t, [3]int{24, 24, 24}, saved.Dims())
	assert.Equal(t, 1.0, saved.Max)
	for i, val := range saved.Data {
		require.Equal(t, float64(res.Selection[i]), val, "voxel %d", i)
	}
}

func TestSaveOutputsMaskCodes(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Extraction.JustEllipse = true
	cfg.Extraction.UseSphere = true
	cfg.Extraction.Subdivision = 3
	cfg.Output.MaskFile = filepath.Join(dir, "mask.npy")
	cfg.Output.SnapshotFile = filepath.Join(dir, "mask.zst")

	v := cubeVolume()
	res := runExtraction(t, cfg, v)
	require.Nil(t, res.Selection)
	require.NoError(t, saveOutputs(cfg, v, res))

	saved, err := volumeio.ReadNpy(cfg.Output.MaskFile)
	require.NoError(t, err)
	assert.Equal(t, float64(models.Interior), saved.Max)

	mask, _, err := volumeio.ReadMaskSnapshot(cfg.Output.SnapshotFile)
	require.NoError(t, err)
	assert.Equal(t, res.Mask.Data, mask.Data)
}
