package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalString(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Duration)
}

func TestDuration_UnmarshalNanoseconds(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`3000000000`), &d))
	assert.Equal(t, 3*time.Second, d.Duration)
}

func TestDuration_UnmarshalInvalid(t *testing.T) {
	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	b, err := json.Marshal(Duration{5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, `"5s"`, string(b))
}
