package domain

import (
	"fmt"
	"math"
)

// BloodPressure 血压（mmHg）
type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

// Vitals 生命体征完整快照
type Vitals struct {
	HeartRate        float64       `json:"heartRate"`
	BloodPressure    BloodPressure `json:"bloodPressure"`
	RespiratoryRate  float64       `json:"respiratoryRate"`
	OxygenSaturation float64       `json:"oxygenSaturation"`
	Temperature      float64       `json:"temperature"`
	PainLevel        float64       `json:"painLevel"`
}

// BloodPressurePatch 血压的部分字段（nil 表示不修改）
type BloodPressurePatch struct {
	Systolic  *float64 `json:"systolic,omitempty"`
	Diastolic *float64 `json:"diastolic,omitempty"`
}

// VitalsPatch 生命体征的部分字段。
// UpdateVitals 用它覆盖字段，ApplyVitalsDelta 用它做增量。
type VitalsPatch struct {
	HeartRate        *float64            `json:"heartRate,omitempty"`
	BloodPressure    *BloodPressurePatch `json:"bloodPressure,omitempty"`
	RespiratoryRate  *float64            `json:"respiratoryRate,omitempty"`
	OxygenSaturation *float64            `json:"oxygenSaturation,omitempty"`
	Temperature      *float64            `json:"temperature,omitempty"`
	PainLevel        *float64            `json:"painLevel,omitempty"`
}

// Range 闭区间
type Range struct {
	Min float64
	Max float64
}

// 生理范围，任何修改之后都要钳制到这里
var (
	HeartRateRange        = Range{0, 300}
	SystolicRange         = Range{0, 300}
	DiastolicRange        = Range{0, 200}
	RespiratoryRateRange  = Range{0, 60}
	OxygenSaturationRange = Range{0, 100}
	TemperatureRange      = Range{0, 45}
	PainLevelRange        = Range{0, 10}
)

func (r Range) clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Clamp 返回钳制后的副本
func (v Vitals) Clamp() Vitals {
	v.HeartRate = HeartRateRange.clamp(v.HeartRate)
	v.BloodPressure.Systolic = SystolicRange.clamp(v.BloodPressure.Systolic)
	v.BloodPressure.Diastolic = DiastolicRange.clamp(v.BloodPressure.Diastolic)
	v.RespiratoryRate = RespiratoryRateRange.clamp(v.RespiratoryRate)
	v.OxygenSaturation = OxygenSaturationRange.clamp(v.OxygenSaturation)
	v.Temperature = TemperatureRange.clamp(v.Temperature)
	v.PainLevel = PainLevelRange.clamp(v.PainLevel)
	return v
}

// Merge 用 patch 中非 nil 的字段覆盖，结果已钳制
func (v Vitals) Merge(p VitalsPatch) Vitals {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&v.HeartRate, p.HeartRate)
	set(&v.RespiratoryRate, p.RespiratoryRate)
	set(&v.OxygenSaturation, p.OxygenSaturation)
	set(&v.Temperature, p.Temperature)
	set(&v.PainLevel, p.PainLevel)
	if p.BloodPressure != nil {
		set(&v.BloodPressure.Systolic, p.BloodPressure.Systolic)
		set(&v.BloodPressure.Diastolic, p.BloodPressure.Diastolic)
	}
	return v.Clamp()
}

// AddDelta 把 patch 中非 nil 的字段当作增量累加，结果已钳制
func (v Vitals) AddDelta(d VitalsPatch) Vitals {
	add := func(dst *float64, delta *float64) {
		if delta != nil {
			*dst += *delta
		}
	}
	add(&v.HeartRate, d.HeartRate)
	add(&v.RespiratoryRate, d.RespiratoryRate)
	add(&v.OxygenSaturation, d.OxygenSaturation)
	add(&v.Temperature, d.Temperature)
	add(&v.PainLevel, d.PainLevel)
	if d.BloodPressure != nil {
		add(&v.BloodPressure.Systolic, d.BloodPressure.Systolic)
		add(&v.BloodPressure.Diastolic, d.BloodPressure.Diastolic)
	}
	return v.Clamp()
}

// IsEmpty patch 是否没有任何字段
func (p VitalsPatch) IsEmpty() bool {
	bpEmpty := p.BloodPressure == nil || (p.BloodPressure.Systolic == nil && p.BloodPressure.Diastolic == nil)
	return p.HeartRate == nil && p.RespiratoryRate == nil && p.OxygenSaturation == nil &&
		p.Temperature == nil && p.PainLevel == nil && bpEmpty
}

type namedField struct {
	name string
	val  *float64
}

// Validate 拒绝 NaN / Inf（JSON 之外的调用方可能构造出来）
func (p VitalsPatch) Validate() error {
	fields := []namedField{
		{"heartRate", p.HeartRate},
		{"respiratoryRate", p.RespiratoryRate},
		{"oxygenSaturation", p.OxygenSaturation},
		{"temperature", p.Temperature},
		{"painLevel", p.PainLevel},
	}
	if p.BloodPressure != nil {
		fields = append(fields,
			namedField{"bloodPressure.systolic", p.BloodPressure.Systolic},
			namedField{"bloodPressure.diastolic", p.BloodPressure.Diastolic},
		)
	}
	for _, f := range fields {
		if f.val != nil && (math.IsNaN(*f.val) || math.IsInf(*f.val, 0)) {
			return fmt.Errorf("%w: vitals field %s is not a finite number", ErrValidation, f.name)
		}
	}
	return nil
}

// Float 便于构造 patch
func Float(f float64) *float64 { return &f }
