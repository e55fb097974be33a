package explain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/envmon/internal/model"
)

func TestFlatten(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   model.Variant
		want float64
	}{
		{"scalar", model.Scalar(0.5), 0.5},
		{"negative scalar", model.Scalar(-0.3), -0.3},
		{"single element", model.Floats(-0.3), -0.3},
		{"takes first element", model.Floats(0.7, -0.2, 0.1), 0.7},
		{"empty sequence", model.Sequence(), 0},
		{"nested one level", model.Sequence(model.Floats(0.25, 9)), 0.25},
		{"nested empty", model.Sequence(model.Sequence()), 0},
		{"deeply nested", model.Sequence(model.Sequence(model.Sequence(model.Scalar(4)))), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Flatten(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlatten_Idempotent(t *testing.T) {
	t.Parallel()

	for _, v := range []model.Variant{
		model.Scalar(1.25),
		model.Floats(-3),
		model.Sequence(),
	} {
		once, err := Flatten(v)
		require.NoError(t, err)
		twice, err := Flatten(model.Scalar(once))
		require.NoError(t, err)
		assert.Equal(t, once, twice)

		again, err := Flatten(v)
		require.NoError(t, err)
		assert.Equal(t, once, again)
	}
}

func TestFlatten_Malformed(t *testing.T) {
	t.Parallel()

	_, err := Flatten(model.Invalid("string \"high\""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedAttribution))

	_, err = Flatten(model.Sequence(model.Invalid("null")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedAttribution))
}

func TestFlatten_NonFinite(t *testing.T) {
	t.Parallel()

	for _, v := range []model.Variant{
		model.Scalar(math.Inf(1)),
		model.Scalar(math.Inf(-1)),
		model.Scalar(math.NaN()),
		model.Floats(math.Inf(1), 0.2),
	} {
		_, err := Flatten(v)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedAttribution), v.String())
	}
}
