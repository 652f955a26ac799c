package histogram

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainextract/internal/models"
)

// sphereVolume builds a size³ volume holding a uniform sphere on a zero background
func sphereVolume(size int, radius, value float64) *models.Volume {
	v := models.NewVolume(size, size, size)
	c := float64(size) / 2
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
				if math.Sqrt(dx*dx+dy*dy+dz*dz) <= radius {
					v.Data[v.Index(x, y, z)] = value
				}
			}
		}
	}
	v.CalcMinMax()
	return v
}

func TestRemap(t *testing.T) {
	v := models.NewVolume(3, 3, 3)
	for i := range v.Data {
		v.Data[i] = float64(i) * 10
	}
	v.CalcMinMax()

	img := Remap(v)
	require.Len(t, img, len(v.Data))
	assert.Equal(t, 0, img[0])
	assert.Equal(t, Bins-1, img[len(img)-1])
	for i := 1; i < len(img); i++ {
		assert.GreaterOrEqual(t, img[i], img[i-1], "remap must be monotonic")
	}
}

func TestRemapConstantVolume(t *testing.T) {
	v := models.NewVolume(4, 4, 4)
	for i := range v.Data {
		v.Data[i] = 42
	}
	v.CalcMinMax()

	for _, val := range Remap(v) {
		assert.Equal(t, 0, val)
	}
}

func TestAnalyzeSphere(t *testing.T) {
	v := sphereVolume(64, 20, 1000)
	th := Analyze(Remap(v))

	assert.Equal(t, 0, th.Min)
	assert.Equal(t, 1, th.Back, "background peak is bin 0")
	assert.Equal(t, Bins-2, th.Bright, "all foreground sits in the top bin")
	assert.LessOrEqual(t, th.Min, th.Back)
	assert.LessOrEqual(t, th.Back, th.Bright)
}

func TestAnalyzeEmptyHistogram(t *testing.T) {
	th := FromHistogram(make([]int, Bins))
	assert.Equal(t, 0, th.Min)
	assert.Equal(t, 1, th.Back)
	assert.GreaterOrEqual(t, th.Bright, th.Back)
}

func TestAnalyzeConstantVolume(t *testing.T) {
	v := models.NewVolume(8, 8, 8)
	for i := range v.Data {
		v.Data[i] = 7
	}
	v.CalcMinMax()

	th := Analyze(Remap(v))
	assert.Equal(t, 0, th.Min)
	assert.Equal(t, 1, th.Back)
	assert.GreaterOrEqual(t, th.Bright, th.Back)
}

func TestAnalyzeFallbackMethod(t *testing.T) {
	// Monotonically increasing low bins put the peak at bin 63
	hist := make([]int, Bins)
	for i := 0; i < backgroundSearch; i++ {
		hist[i] = i + 1
	}
	for i := 300; i < 700; i++ {
		hist[i] = 50
	}

	th := FromHistogram(hist)
	total := 0
	for _, c := range hist {
		total += c
	}
	low := cumulativeIndex(hist, total, lowFraction)
	high := cumulativeIndex(hist, total, highFraction)
	back := int(math.Floor(0.9*float64(low) + 0.1*float64(high)))

	assert.Equal(t, high, th.Max)
	assert.Equal(t, back, th.Back)
	assert.Equal(t, back/2, th.Min)
	assert.LessOrEqual(t, th.Back, th.Bright)
}

func TestAnalyzeOrderingProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		hist := make([]int, Bins)
		nonZero := rng.Intn(40) + 1
		for i := 0; i < nonZero; i++ {
			hist[rng.Intn(Bins)] += rng.Intn(5000)
		}

		th := FromHistogram(hist)
		assert.GreaterOrEqual(t, th.Back, 1, "trial %d", trial)
		assert.LessOrEqual(t, th.Min, th.Back, "trial %d", trial)
		assert.LessOrEqual(t, th.Back, th.Bright, "trial %d", trial)
		assert.Less(t, th.Min, th.Back, "trial %d", trial)
	}
}

func TestToPhysical(t *testing.T) {
	v := &models.Volume{Min: 100, Max: 1123}
	assert.InDelta(t, 100.0, ToPhysical(v, 0), 1e-9)
	assert.InDelta(t, 1123.0, ToPhysical(v, Bins-1), 1e-9)
}
