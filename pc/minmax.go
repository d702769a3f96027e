package pc

import (
	"errors"
	"math"

	"github.com/scanreg/scanreg/mat"
)

// MinMaxVec3 returns the axis-aligned bounds of the cloud.
func MinMaxVec3(ra Vec3RandomAccessor) (mat.Vec3, mat.Vec3, error) {
	if ra.Len() == 0 {
		return mat.Vec3{}, mat.Vec3{}, errors.New("no point")
	}
	min := mat.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	max := mat.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i := 0; i < ra.Len(); i++ {
		v := ra.Vec3At(i)
		for j := range v {
			if v[j] < min[j] {
				min[j] = v[j]
			}
			if v[j] > max[j] {
				max[j] = v[j]
			}
		}
	}
	return min, max, nil
}
