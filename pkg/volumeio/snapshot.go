package volumeio

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"brainextract/internal/models"
)

// SnapshotVersion is the current mask snapshot format
const SnapshotVersion = 1

// ErrBadSnapshot is returned for snapshots whose header does not describe the payload
var ErrBadSnapshot = errors.New("bad mask snapshot")

// SnapshotHeader is the JSON line that precedes the mask bytes
type SnapshotHeader struct {
	Version    int        `json:"version"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Depth      int        `json:"depth"`
	Resolution [3]float64 `json:"resolution"`
	Origin     [3]float64 `json:"origin"`

	Inside    int     `json:"inside"`
	VolumeMM3 float64 `json:"volume_mm3"`
}

// NewSnapshotHeader describes mask in the grid of v
func NewSnapshotHeader(mask *models.Mask, v *models.Volume) SnapshotHeader {
	inside := mask.Count()
	return SnapshotHeader{
		Version:    SnapshotVersion,
		Width:      mask.Width,
		Height:     mask.Height,
		Depth:      mask.Depth,
		Resolution: v.Resolution,
		Origin:     v.Origin,
		Inside:     inside,
		VolumeMM3:  float64(inside) * v.VoxelVolume(),
	}
}

// WriteMaskSnapshot writes the header line and the raw mask as one zstd stream
func WriteMaskSnapshot(path string, mask *models.Mask, hdr SnapshotHeader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(hdr)
	if err != nil {
		enc.Close()
		return err
	}
	hb = append(hb, '\n')
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if _, err := bw.Write(mask.Data); err != nil {
		enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("zstd close: %w", err)
	}
	return f.Close()
}

// ReadMaskSnapshot reads a snapshot written by WriteMaskSnapshot
func ReadMaskSnapshot(path string) (*models.Mask, SnapshotHeader, error) {
	var hdr SnapshotHeader
	f, err := os.Open(path)
	if err != nil {
		return nil, hdr, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, hdr, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, hdr, fmt.Errorf("%w: header: %v", ErrBadSnapshot, err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		return nil, hdr, fmt.Errorf("%w: header: %v", ErrBadSnapshot, err)
	}
	if hdr.Version != SnapshotVersion {
		return nil, hdr, fmt.Errorf("%w: version %d", ErrBadSnapshot, hdr.Version)
	}
	n := int64(hdr.Width) * int64(hdr.Height) * int64(hdr.Depth)
	if hdr.Width <= 0 || hdr.Height <= 0 || hdr.Depth <= 0 || n > models.MaxVoxels {
		return nil, hdr, fmt.Errorf("%w: extents %dx%dx%d", ErrBadSnapshot, hdr.Width, hdr.Height, hdr.Depth)
	}

	mask := models.NewMask(hdr.Width, hdr.Height, hdr.Depth)
	if _, err := io.ReadFull(br, mask.Data); err != nil {
		return nil, hdr, fmt.Errorf("%w: payload: %v", ErrBadSnapshot, err)
	}
	return mask, hdr, nil
}
