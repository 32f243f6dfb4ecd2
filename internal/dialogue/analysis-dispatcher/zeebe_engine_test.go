package analysisdispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStarter struct {
	processID string
	variables interface{}
	result    map[string]interface{}
	err       error
}

func (s *stubStarter) StartProcessWithResult(ctx context.Context, processID string, variables interface{}) (map[string]interface{}, error) {
	s.processID = processID
	s.variables = variables
	return s.result, s.err
}

func TestZeebeEngine_Result(t *testing.T) {
	starter := &stubStarter{result: map[string]interface{}{
		"request":        map[string]interface{}{"id": "req-1"},
		"analysisResult": map[string]interface{}{"flooded_km2": 3.5},
	}}
	engine := NewZeebeEngine(starter, "geo-analysis")

	req := slrRequest()
	raw, err := engine.Run(context.Background(), req)

	require.NoError(t, err)
	assert.JSONEq(t, `{"flooded_km2":3.5}`, string(raw))
	assert.Equal(t, "geo-analysis", starter.processID)
	assert.Equal(t, map[string]interface{}{"request": req}, starter.variables)
	assert.Equal(t, "zeebe", engine.Name())
}

func TestZeebeEngine_Failures(t *testing.T) {
	tests := []struct {
		name      string
		starter   *stubStarter
		code      string
		message   string
		transient bool
	}{
		{
			name: "analysis error variable",
			starter: &stubStarter{result: map[string]interface{}{
				"analysisError": map[string]interface{}{"code": "NO_DATA", "message": "no imagery for 2001", "transient": false},
			}},
			code:    "NO_DATA",
			message: "no imagery for 2001",
		},
		{
			name: "transient analysis error",
			starter: &stubStarter{result: map[string]interface{}{
				"analysisError": map[string]interface{}{"code": "UPSTREAM", "message": "tile server busy", "transient": true},
			}},
			code:      "UPSTREAM",
			message:   "tile server busy",
			transient: true,
		},
		{
			name:    "no result",
			starter: &stubStarter{result: map[string]interface{}{}},
			code:    "EMPTY_RESULT",
			message: "process geo-analysis ended without a result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewZeebeEngine(tt.starter, "geo-analysis").Run(context.Background(), slrRequest())

			var engineErr *EngineError
			require.True(t, errors.As(err, &engineErr))
			assert.Equal(t, tt.code, engineErr.Code)
			assert.Equal(t, tt.message, engineErr.Message)
			assert.Equal(t, tt.transient, engineErr.Transient)
		})
	}
}

func TestZeebeEngine_StarterError(t *testing.T) {
	boom := errors.New("gateway unreachable")
	_, err := NewZeebeEngine(&stubStarter{err: boom}, "geo-analysis").Run(context.Background(), slrRequest())
	assert.ErrorIs(t, err, boom)
}
