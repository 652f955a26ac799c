// Package volumeio reads input volumes and writes masks and masked volumes
// as NumPy .npy arrays, plus compressed mask snapshots.
package volumeio

import (
	"fmt"
	"strings"

	"github.com/kshedden/gonpy"

	"brainextract/internal/models"
	"brainextract/pkg/config"
)

var log = config.NamedLogger("volumeio")

// ReadNpy loads a 3D .npy array as a volume with unit resolution. C-order
// arrays are shaped (z, y, x), Fortran-order arrays (x, y, z).
func ReadNpy(path string) (*models.Volume, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	if len(r.Shape) != 3 {
		return nil, fmt.Errorf("%w: %s has shape %v, want 3 dimensions", models.ErrInvalidVolume, path, r.Shape)
	}

	var w, h, d int
	if r.ColumnMajor {
		w, h, d = r.Shape[0], r.Shape[1], r.Shape[2]
	} else {
		d, h, w = r.Shape[0], r.Shape[1], r.Shape[2]
	}
	if n := int64(w) * int64(h) * int64(d); n > models.MaxVoxels {
		return nil, fmt.Errorf("%w: %s holds %d voxels", models.ErrResourceExhausted, path, n)
	}

	data, err := readFloat64(r)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	v := &models.Volume{
		Data:       data,
		Width:      w,
		Height:     h,
		Depth:      d,
		Resolution: [3]float64{1, 1, 1},
	}
	v.CalcMinMax()
	log.Debugf("loaded %s: %dx%dx%d dtype=%s range=[%g, %g]", path, w, h, d, r.Dtype, v.Min, v.Max)
	return v, nil
}

// readFloat64 converts any numeric dtype into float64 values
func readFloat64(r *gonpy.NpyReader) ([]float64, error) {
	switch dtype := strings.TrimLeft(r.Dtype, "<>|="); dtype {
	case "f8":
		return r.GetFloat64()
	case "f4":
		return convert(r.GetFloat32())
	case "i1":
		return convert(r.GetInt8())
	case "i2":
		return convert(r.GetInt16())
	case "i4":
		return convert(r.GetInt32())
	case "i8":
		return convert(r.GetInt64())
	case "u1":
		return convert(r.GetUint8())
	case "u2":
		return convert(r.GetUint16())
	case "u4":
		return convert(r.GetUint32())
	case "u8":
		return convert(r.GetUint64())
	default:
		return nil, fmt.Errorf("unsupported dtype %q", r.Dtype)
	}
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32
}

func convert[T number](values []T, err error) ([]float64, error) {
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for i, val := range values {
		out[i] = float64(val)
	}
	return out, nil
}

// WriteMaskNpy saves the mask as a uint8 array shaped (z, y, x)
func WriteMaskNpy(path string, mask *models.Mask) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	w.Shape = []int{mask.Depth, mask.Height, mask.Width}
	if err := w.WriteUint8(mask.Data); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

// WriteVolumeNpy saves the volume as a float64 array shaped (z, y, x)
func WriteVolumeNpy(path string, v *models.Volume) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	w.Shape = []int{v.Depth, v.Height, v.Width}
	if err := w.WriteFloat64(v.Data); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}
