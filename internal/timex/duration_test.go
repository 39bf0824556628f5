package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "string minutes", input: `"1m"`, want: time.Minute},
		{name: "string compound", input: `"1h30m"`, want: 90 * time.Minute},
		{name: "nanoseconds", input: `1000000000`, want: time.Second},
		{name: "null keeps zero", input: `null`, want: 0},
		{name: "bad string", input: `"soon"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
		{name: "broken json", input: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_InStruct(t *testing.T) {
	var v struct {
		Interval Duration `json:"interval"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"interval":"10m"}`), &v))
	assert.Equal(t, 10*time.Minute, v.Interval.Duration)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"interval":"10m0s"}`, string(out))
}
