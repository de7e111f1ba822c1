// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSensors/pkg/validation"
	"github.com/go-playground/validator/v10"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// ErrMalformedPayload is returned for a body that is neither a telemetry
// object nor an array of them.
var ErrMalformedPayload = errors.New("malformed payload")

// Telemetry is one device report.
type Telemetry struct {
	Device  string   `json:"device" validate:"required,identifier"`
	Sensors []Sensor `json:"sensors" validate:"dive"`
}

// Sensor is one sensor of a device and its sample groups.
type Sensor struct {
	SensorID   string      `json:"sensor_id" validate:"required,identifier"`
	SensorType string      `json:"sensor_type" validate:"required,identifier"`
	Data       []DataPoint `json:"data" validate:"dive"`
}

// DataPoint is a group of measurements taken at one instant. A missing
// timestamp means the time of receipt.
type DataPoint struct {
	Timestamp    *Timestamp    `json:"timestamp,omitempty"`
	Measurements []Measurement `json:"measurements" validate:"dive"`
}

// Measurement is one named value. Value is a pointer so that a missing
// value is distinguishable from zero.
type Measurement struct {
	Name  string   `json:"name" validate:"required,identifier"`
	Value *float64 `json:"value" validate:"required"`
}

// Timestamp accepts an RFC 3339 string or a number of seconds since the
// Unix epoch.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return fmt.Errorf("timestamp %s: want RFC 3339 string or epoch seconds", data)
	}
	whole := math.Floor(secs)
	t.Time = time.Unix(int64(whole), int64((secs-whole)*1e9)).UTC()
	return nil
}

// MarshalJSON writes RFC 3339 with nanoseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// Decode parses a body holding one Telemetry object or an array of them.
func Decode(body []byte) ([]Telemetry, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	switch body[0] {
	case '{':
		var one Telemetry
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return []Telemetry{one}, nil
	case '[':
		var many []Telemetry
		if err := json.Unmarshal(body, &many); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return many, nil
	default:
		return nil, fmt.Errorf("%w: want object or array", ErrMalformedPayload)
	}
}

// NewValidator returns a validator with the identifier tag registered and
// field errors reported by JSON name.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return validation.ValidateIdentifier(fl.Field().String()) == nil
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every report. The error lists each failing field.
func Validate(v *validator.Validate, reports []Telemetry) error {
	for i := range reports {
		if err := v.Struct(&reports[i]); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				fields := make([]string, 0, len(verrs))
				for _, fe := range verrs {
					fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
				}
				return fmt.Errorf("report %d: invalid fields: %s", i, strings.Join(fields, ", "))
			}
			return fmt.Errorf("report %d: %w", i, err)
		}
	}
	return nil
}

// ToPoints maps reports onto store points: one point per measurement
// group, measurement = sensor type, tags device and sensor, one field per
// measurement name. Groups without measurements are skipped. now stamps
// groups without a timestamp.
func ToPoints(reports []Telemetry, now time.Time) []*write.Point {
	var points []*write.Point
	for _, r := range reports {
		for _, s := range r.Sensors {
			tags := map[string]string{"device": r.Device, "sensor": s.SensorID}
			for _, dp := range s.Data {
				if len(dp.Measurements) == 0 {
					continue
				}
				fields := make(map[string]interface{}, len(dp.Measurements))
				for _, m := range dp.Measurements {
					if m.Value != nil {
						fields[m.Name] = *m.Value
					}
				}
				ts := now
				if dp.Timestamp != nil {
					ts = dp.Timestamp.Time
				}
				points = append(points, write.NewPoint(s.SensorType, tags, fields, ts.UTC()))
			}
		}
	}
	return points
}
