package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGazeMetric_Defaults(t *testing.T) {
	sessionID := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m, err := ParseGazeMetric([]byte(`{}`), sessionID, now)
	require.NoError(t, err)

	assert.Equal(t, sessionID, m.SessionID)
	assert.Equal(t, float64(now.Unix()), m.Timestamp)
	assert.False(t, m.FacePresent)
	assert.Zero(t, m.AttentionScore)
	assert.Zero(t, m.FatigueLevel)
	assert.NotNil(t, m.HeadPose)
	assert.NotNil(t, m.GazeDirection)
	assert.Equal(t, now, m.ReceivedAt)
}

func TestParseGazeMetric_SnakeCase(t *testing.T) {
	raw := []byte(`{
		"timestamp": 1700000000.5,
		"face_present": true,
		"attention_score": 0.85,
		"engagement_score": 0.7,
		"blink_rate": 12,
		"fatigue_level": 0.2,
		"head_pose": {"pitch": 0.1, "yaw": 0.05, "roll": 0.02},
		"gaze_direction": {"x": 0.3, "y": 0.4}
	}`)

	m, err := ParseGazeMetric(raw, uuid.New(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1700000000.5, m.Timestamp)
	assert.True(t, m.FacePresent)
	assert.Equal(t, 0.85, m.AttentionScore)
	assert.Equal(t, 0.7, m.EngagementScore)
	assert.Equal(t, 12.0, m.BlinkRate)
	assert.Equal(t, 0.2, m.FatigueLevel)
	assert.Equal(t, map[string]float64{"pitch": 0.1, "yaw": 0.05, "roll": 0.02}, m.HeadPose)
	assert.Equal(t, 0.4, m.GazeDirection["y"])
}

func TestParseGazeMetric_CamelCase(t *testing.T) {
	raw := []byte(`{"type":"metric","facePresent":true,"attentionScore":0.5,"gazeOnScreen":0.9,"headPose":{"yaw":1}}`)

	m, err := ParseGazeMetric(raw, uuid.New(), time.Now())
	require.NoError(t, err)

	assert.True(t, m.FacePresent)
	assert.Equal(t, 0.5, m.AttentionScore)
	assert.Equal(t, 0.9, m.GazeOnScreen)
	assert.Equal(t, 1.0, m.HeadPose["yaw"])
}

func TestParseGazeMetric_CoercesLooseTypes(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, m *GazeMetric)
	}{
		{"numeric string score", `{"attentionScore":"0.9"}`, func(t *testing.T, m *GazeMetric) {
			assert.Equal(t, 0.9, m.AttentionScore)
		}},
		{"padded numeric string", `{"fatigue_level":" 0.25 "}`, func(t *testing.T, m *GazeMetric) {
			assert.Equal(t, 0.25, m.FatigueLevel)
		}},
		{"presence as one", `{"face_present":1}`, func(t *testing.T, m *GazeMetric) {
			assert.True(t, m.FacePresent)
		}},
		{"presence as zero", `{"facePresent":0}`, func(t *testing.T, m *GazeMetric) {
			assert.False(t, m.FacePresent)
		}},
		{"presence as string", `{"face_present":"true"}`, func(t *testing.T, m *GazeMetric) {
			assert.True(t, m.FacePresent)
		}},
		{"boolean as number", `{"gaze_on_screen":true}`, func(t *testing.T, m *GazeMetric) {
			assert.Equal(t, 1.0, m.GazeOnScreen)
		}},
		{"axis as string", `{"head_pose":{"yaw":"3","pitch":-1}}`, func(t *testing.T, m *GazeMetric) {
			assert.Equal(t, map[string]float64{"yaw": 3, "pitch": -1}, m.HeadPose)
		}},
		{"timestamp as string", `{"timestamp":"1700000000.5"}`, func(t *testing.T, m *GazeMetric) {
			assert.Equal(t, 1700000000.5, m.Timestamp)
		}},
		{"null falls back to default", `{"attention_score":null,"attentionScore":0.4,"head_pose":null}`, func(t *testing.T, m *GazeMetric) {
			assert.Equal(t, 0.4, m.AttentionScore)
			assert.Empty(t, m.HeadPose)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := ParseGazeMetric([]byte(tc.raw), uuid.New(), time.Now())
			require.NoError(t, err)
			tc.check(t, m)
		})
	}
}

func TestParseGazeMetric_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"null", "null"},
		{"array", "[1,2,3]"},
		{"string", `"attention"`},
		{"truncated", `{"attention_score": 0.5`},
		{"wrong field type", `{"attention_score": "high"}`},
		{"wrong axis type", `{"head_pose": {"yaw": "left"}}`},
		{"pose not an object", `{"head_pose": [1, 2]}`},
		{"presence out of range", `{"face_present": 2}`},
		{"presence word", `{"facePresent": "maybe"}`},
		{"non-finite string", `{"blink_rate": "NaN"}`},
		{"timestamp word", `{"timestamp": "now"}`},
		{"trailing data", `{"attention_score": 0.5} {}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseGazeMetric([]byte(tc.raw), uuid.New(), time.Now())
			assert.Error(t, err)
		})
	}
}

func TestStudentUpdate_WireShape(t *testing.T) {
	m := &GazeMetric{SessionID: uuid.New(), AttentionScore: 0.9}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	data, err := json.Marshal(NewStudentUpdate(m, at))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, FrameStudentUpdate, decoded["type"])
	assert.Equal(t, m.SessionID.String(), decoded["session_id"])
	assert.Equal(t, "2026-03-01T12:00:00Z", decoded["timestamp"])
	assert.Contains(t, decoded, "metrics")
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Teacher ")
	assert.True(t, ok)
	assert.Equal(t, RoleTeacher, r)

	r, ok = ParseRole("student")
	assert.True(t, ok)
	assert.Equal(t, RoleStudent, r)

	_, ok = ParseRole("admin")
	assert.False(t, ok)
}

func TestNewRoomCode(t *testing.T) {
	code := NewRoomCode()
	assert.Len(t, code, 8)
	assert.Equal(t, code, NormalizeRoomCode(" "+code+" "))
	assert.Equal(t, "AB12CD34", NormalizeRoomCode("ab12cd34"))
}
