package domain

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inRange(r Range, v float64) bool {
	return v >= r.Min && v <= r.Max
}

func assertClamped(t *testing.T, v Vitals) {
	t.Helper()
	assert.True(t, inRange(HeartRateRange, v.HeartRate), "heartRate %v", v.HeartRate)
	assert.True(t, inRange(SystolicRange, v.BloodPressure.Systolic), "systolic %v", v.BloodPressure.Systolic)
	assert.True(t, inRange(DiastolicRange, v.BloodPressure.Diastolic), "diastolic %v", v.BloodPressure.Diastolic)
	assert.True(t, inRange(RespiratoryRateRange, v.RespiratoryRate), "respiratoryRate %v", v.RespiratoryRate)
	assert.True(t, inRange(OxygenSaturationRange, v.OxygenSaturation), "oxygenSaturation %v", v.OxygenSaturation)
	assert.True(t, inRange(TemperatureRange, v.Temperature), "temperature %v", v.Temperature)
	assert.True(t, inRange(PainLevelRange, v.PainLevel), "painLevel %v", v.PainLevel)
}

func randomPatch(r *rand.Rand) VitalsPatch {
	f := func() *float64 {
		if r.Intn(3) == 0 {
			return nil
		}
		return Float((r.Float64() - 0.5) * 2e4)
	}
	p := VitalsPatch{
		HeartRate:        f(),
		RespiratoryRate:  f(),
		OxygenSaturation: f(),
		Temperature:      f(),
		PainLevel:        f(),
	}
	if r.Intn(2) == 0 {
		p.BloodPressure = &BloodPressurePatch{Systolic: f(), Diastolic: f()}
	}
	return p
}

func TestVitals_ClampHoldsForArbitrarySequences(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	v := Vitals{HeartRate: 80, BloodPressure: BloodPressure{120, 80}, RespiratoryRate: 16, OxygenSaturation: 98, Temperature: 37, PainLevel: 0}

	for i := 0; i < 2000; i++ {
		if i%2 == 0 {
			v = v.Merge(randomPatch(r))
		} else {
			v = v.AddDelta(randomPatch(r))
		}
		assertClamped(t, v)
	}
}

func TestVitals_MergeLeavesUnsetFields(t *testing.T) {
	v := Vitals{HeartRate: 112, BloodPressure: BloodPressure{138, 88}, RespiratoryRate: 28, OxygenSaturation: 91, Temperature: 37.2, PainLevel: 2}

	got := v.Merge(VitalsPatch{HeartRate: Float(120), BloodPressure: &BloodPressurePatch{Diastolic: Float(90)}})

	assert.Equal(t, 120.0, got.HeartRate)
	assert.Equal(t, 138.0, got.BloodPressure.Systolic)
	assert.Equal(t, 90.0, got.BloodPressure.Diastolic)
	assert.Equal(t, 28.0, got.RespiratoryRate)
	assert.Equal(t, 91.0, got.OxygenSaturation)
}

func TestVitals_AddDelta(t *testing.T) {
	v := Vitals{HeartRate: 112, RespiratoryRate: 28, OxygenSaturation: 91, Temperature: 37}

	got := v.AddDelta(VitalsPatch{HeartRate: Float(-15), OxygenSaturation: Float(4), RespiratoryRate: Float(-4)})
	assert.Equal(t, 97.0, got.HeartRate)
	assert.Equal(t, 95.0, got.OxygenSaturation)
	assert.Equal(t, 24.0, got.RespiratoryRate)

	got = got.AddDelta(VitalsPatch{OxygenSaturation: Float(50)})
	assert.Equal(t, 100.0, got.OxygenSaturation)
}

func TestVitalsPatch_Validate(t *testing.T) {
	require.NoError(t, VitalsPatch{HeartRate: Float(80)}.Validate())

	err := VitalsPatch{HeartRate: Float(math.NaN())}.Validate()
	assert.ErrorIs(t, err, ErrValidation)

	err = VitalsPatch{BloodPressure: &BloodPressurePatch{Systolic: Float(math.Inf(1))}}.Validate()
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "bloodPressure.systolic")
}

func TestVitalsPatch_IsEmpty(t *testing.T) {
	assert.True(t, VitalsPatch{}.IsEmpty())
	assert.True(t, VitalsPatch{BloodPressure: &BloodPressurePatch{}}.IsEmpty())
	assert.False(t, VitalsPatch{PainLevel: Float(3)}.IsEmpty())
}
