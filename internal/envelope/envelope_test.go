package envelope

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refset/freight-risk-quoting/internal/apperr"
)

type payload struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

var now = time.Date(2025, 3, 10, 8, 30, 1, 123456789, time.FixedZone("SGT", 8*3600))

func TestMarshal_WireShape(t *testing.T) {
	b, err := Marshal(OK(payload{Name: "a", Score: 1.5}, now))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"data":{"name":"a","score":1.5},"error":null,"ts":"2025-03-10T00:30:01.123456Z"}`, string(b))

	b, err = Marshal(Fail[payload](apperr.Validationf("mixed currencies"), now))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"data":null,"error":"Validation: mixed currencies","ts":"2025-03-10T00:30:01.123456Z"}`, string(b))
}

func TestFail_Rendering(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{apperr.New(apperr.NotFound, ""), "NotFound"},
		{apperr.Wrap(apperr.Service, "store", errors.New("dsn=postgres://secret")), "Service: store"},
		{errors.New("boom"), "Service"},
		{context.Canceled, "Service: request cancelled"},
	}
	for _, tt := range tests {
		e := Fail[payload](tt.err, now)
		require.NotNil(t, e.Error)
		assert.Equal(t, tt.want, *e.Error)
		assert.Nil(t, e.Data)
		assert.False(t, e.OK)
	}
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse[payload]([]byte(`{"ok":true,"ts":"yesterday"}`))
	assert.Error(t, err)
	_, err = Parse[payload]([]byte(`not json`))
	assert.Error(t, err)
}

func equalEnvelopes(a, b Envelope[payload]) bool {
	if a.OK != b.OK || !a.TS.Equal(b.TS.Time) {
		return false
	}
	if (a.Data == nil) != (b.Data == nil) || (a.Data != nil && *a.Data != *b.Data) {
		return false
	}
	return (a.Error == nil) == (b.Error == nil) && (a.Error == nil || *a.Error == *b.Error)
}

func TestRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	genTime := gen.Int64Range(0, 4102444800).Map(func(sec int64) time.Time {
		return time.Unix(sec, sec%1000000007)
	})

	properties.Property("success envelopes survive parse(marshal)", prop.ForAll(
		func(name string, score float64, ts time.Time) bool {
			env := OK(payload{Name: name, Score: score}, ts)
			b, err := Marshal(env)
			if err != nil {
				return false
			}
			back, err := Parse[payload](b)
			return err == nil && equalEnvelopes(env, back)
		},
		gen.AnyString(), gen.Float64Range(-1e9, 1e9), genTime,
	))

	properties.Property("failure envelopes survive parse(marshal)", prop.ForAll(
		func(detail string, kind int, ts time.Time) bool {
			env := Fail[payload](apperr.New(apperr.Kind(kind), detail), ts)
			b, err := Marshal(env)
			if err != nil {
				return false
			}
			back, err := Parse[payload](b)
			return err == nil && equalEnvelopes(env, back)
		},
		gen.AnyString(), gen.IntRange(0, 3), genTime,
	))

	properties.TestingRun(t)
}
