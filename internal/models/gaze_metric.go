package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GazeMetric is one telemetry sample produced by a student's vision pipeline.
// ID is assigned on append and reflects arrival order within the store.
type GazeMetric struct {
	ID              int64              `json:"id,omitempty"`
	SessionID       uuid.UUID          `json:"session_id"`
	Timestamp       float64            `json:"timestamp"`
	FacePresent     bool               `json:"face_present"`
	FaceAreaRatio   float64            `json:"face_area_ratio"`
	GazeOnScreen    float64            `json:"gaze_on_screen"`
	AttentionScore  float64            `json:"attention_score"`
	EngagementScore float64            `json:"engagement_score"`
	BlinkRate       float64            `json:"blink_rate"`
	FatigueLevel    float64            `json:"fatigue_level"`
	HeadPose        map[string]float64 `json:"head_pose"`
	GazeDirection   map[string]float64 `json:"gaze_direction"`
	ReceivedAt      time.Time          `json:"received_at"`
}

var ErrNotAnObject = errors.New("metric frame must be a JSON object")

// ParseGazeMetric decodes a flat metric mapping. Browser clients send camelCase
// keys, the raw socket clients snake_case; both are accepted. Missing or null
// fields default to zero values and a missing timestamp defaults to
// receivedAt. Numeric strings and booleans coerce to numbers, and 0/1 or
// boolean-like strings coerce to booleans. Only a value that cannot be
// coerced, or input that is not an object, is rejected.
func ParseGazeMetric(raw []byte, sessionID uuid.UUID, receivedAt time.Time) (*GazeMetric, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotAnObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("decode metric frame: %w", err)
	}
	d := frameDecoder{fields: fields}

	m := &GazeMetric{
		SessionID:       sessionID,
		Timestamp:       float64(receivedAt.UnixNano()) / float64(time.Second),
		FacePresent:     d.boolean("face_present", "facePresent"),
		FaceAreaRatio:   d.number("face_area_ratio", "faceAreaRatio"),
		GazeOnScreen:    d.number("gaze_on_screen", "gazeOnScreen"),
		AttentionScore:  d.number("attention_score", "attentionScore"),
		EngagementScore: d.number("engagement_score", "engagementScore"),
		BlinkRate:       d.number("blink_rate", "blinkRate"),
		FatigueLevel:    d.number("fatigue_level", "fatigueLevel"),
		HeadPose:        d.axes("head_pose", "headPose"),
		GazeDirection:   d.axes("gaze_direction", "gazeDirection"),
		ReceivedAt:      receivedAt.UTC(),
	}
	if v, ok := d.lookup("timestamp"); ok {
		ts, err := coerceFloat(v)
		if err != nil {
			d.fail("timestamp", err)
		} else {
			m.Timestamp = ts
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

// frameDecoder reads fields by their snake_case or camelCase key and keeps
// the first coercion failure.
type frameDecoder struct {
	fields map[string]json.RawMessage
	err    error
}

func (d *frameDecoder) lookup(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		v, ok := d.fields[k]
		if ok && !isNull(v) {
			return v, true
		}
	}
	return nil, false
}

func (d *frameDecoder) fail(key string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("field %s: %w", key, err)
	}
}

func (d *frameDecoder) number(keys ...string) float64 {
	v, ok := d.lookup(keys...)
	if !ok {
		return 0
	}
	f, err := coerceFloat(v)
	if err != nil {
		d.fail(keys[0], err)
	}
	return f
}

func (d *frameDecoder) boolean(keys ...string) bool {
	v, ok := d.lookup(keys...)
	if !ok {
		return false
	}
	b, err := coerceBool(v)
	if err != nil {
		d.fail(keys[0], err)
	}
	return b
}

func (d *frameDecoder) axes(keys ...string) map[string]float64 {
	out := map[string]float64{}
	v, ok := d.lookup(keys...)
	if !ok {
		return out
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v, &obj); err != nil {
		d.fail(keys[0], err)
		return out
	}
	for axis, raw := range obj {
		f, err := coerceFloat(raw)
		if err != nil {
			d.fail(keys[0]+"."+axis, err)
			continue
		}
		out[axis] = f
	}
	return out
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

func coerceFloat(v json.RawMessage) (float64, error) {
	v = bytes.TrimSpace(v)
	var f float64
	switch {
	case len(v) > 0 && v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, err
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		f = parsed
	case string(v) == "true":
		f = 1
	case string(v) == "false":
		f = 0
	default:
		if err := json.Unmarshal(v, &f); err != nil {
			return 0, err
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not a finite number")
	}
	return f, nil
}

func coerceBool(v json.RawMessage) (bool, error) {
	v = bytes.TrimSpace(v)
	switch {
	case len(v) > 0 && v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "t", "yes", "y", "on":
			return true, nil
		case "0", "false", "f", "no", "n", "off":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", s)
	case string(v) == "true":
		return true, nil
	case string(v) == "false":
		return false, nil
	default:
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return false, err
		}
		switch f {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %v", f)
	}
}
