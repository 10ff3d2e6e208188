// ABOUTME: Threshold classification for blood pressure and blood sugar readings.
// ABOUTME: Pure functions mapping a measurement to a qualitative status and message.
package vitals

import (
	"github.com/harperreed/medtrack/internal/models"
)

// Status is the qualitative band a reading falls into.
type Status string

const (
	StatusNormal      Status = "normal"
	StatusElevated    Status = "elevated"
	StatusHigh        Status = "high"
	StatusVeryHigh    Status = "very_high"
	StatusPrediabetes Status = "prediabetes_range"
	StatusDiabetes    Status = "diabetes_range"
)

// Classification is the result of checking a reading against clinical thresholds.
type Classification struct {
	Status  Status `json:"status" yaml:"status"`
	Message string `json:"message" yaml:"message"`
}

// ClassifyBloodPressure evaluates tiers top-down; either value reaching a
// tier's threshold is enough to land in it.
func ClassifyBloodPressure(systolic, diastolic float64) Classification {
	switch {
	case systolic >= 180 || diastolic >= 120:
		return Classification{StatusVeryHigh, "Hypertensive crisis: seek medical care immediately"}
	case systolic >= 140 || diastolic >= 90:
		return Classification{StatusHigh, "High blood pressure: talk to your doctor"}
	case systolic >= 130 || diastolic >= 80:
		return Classification{StatusElevated, "Blood pressure is elevated: keep monitoring"}
	default:
		return Classification{StatusNormal, "Blood pressure is normal"}
	}
}

// ClassifyBloodSugar applies fasting or post-meal thresholds in mg/dL.
func ClassifyBloodSugar(value float64, fasting bool) Classification {
	if fasting {
		switch {
		case value >= 126:
			return Classification{StatusDiabetes, "Fasting blood sugar is in the diabetes range: see your doctor"}
		case value >= 100:
			return Classification{StatusPrediabetes, "Fasting blood sugar is in the prediabetes range"}
		default:
			return Classification{StatusNormal, "Fasting blood sugar is normal"}
		}
	}
	switch {
	case value >= 200:
		return Classification{StatusDiabetes, "Blood sugar is in the diabetes range: see your doctor"}
	case value >= 140:
		return Classification{StatusElevated, "Blood sugar is elevated"}
	default:
		return Classification{StatusNormal, "Blood sugar is normal"}
	}
}

// Classify dispatches on the reading's type tag. Types without thresholds
// return ok=false. Blood sugar readings are treated as non-fasting.
func Classify(r *models.Reading) (Classification, bool) {
	switch r.Type {
	case models.ReadingBloodPressure:
		if r.Pressure == nil {
			return Classification{}, false
		}
		return ClassifyBloodPressure(r.Pressure.Systolic, r.Pressure.Diastolic), true
	case models.ReadingBloodSugar:
		return ClassifyBloodSugar(r.Value, false), true
	default:
		return Classification{}, false
	}
}
