package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	body, err := Encode(Delivery{JobID: "job-1", JobType: "hockey"})
	require.NoError(t, err)
	require.JSONEq(t, `{"job_id":"job-1","job_type":"hockey"}`, string(body))

	got, err := Decode(body)
	require.NoError(t, err)
	require.Equal(t, Delivery{JobID: "job-1", JobType: "hockey"}, got)
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":      `not-json`,
		"array":         `["job-1"]`,
		"missing type":  `{"job_id":"job-1"}`,
		"missing id":    `{"job_type":"oscar"}`,
		"empty object":  `{}`,
		"wrong id type": `{"job_id":7,"job_type":"oscar"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(body))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedDelivery))
		})
	}
}
