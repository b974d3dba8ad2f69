package docstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string    `doc:"name"`
	Amount  int64     `doc:"amount"`
	Active  bool      `doc:"active"`
	PaidAt  time.Time `doc:"paidAt"`
	Missing string    `doc:"missing"`
}

func TestDecodeNativeValues(t *testing.T) {
	paid := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var s sample
	require.NoError(t, Decode(Fields{"name": "Dosa", "amount": int64(150), "active": true, "paidAt": paid}, &s))

	assert.Equal(t, "Dosa", s.Name)
	assert.Equal(t, int64(150), s.Amount)
	assert.True(t, s.Active)
	assert.True(t, paid.Equal(s.PaidAt))
	assert.Empty(t, s.Missing)
}

func TestDecodeJSONValues(t *testing.T) {
	var s sample
	require.NoError(t, Decode(Fields{"amount": json.Number("150"), "paidAt": "2026-03-01T12:00:00Z"}, &s))

	assert.Equal(t, int64(150), s.Amount)
	assert.Equal(t, 2026, s.PaidAt.Year())
}

func TestDecodeServerTimestampIsZero(t *testing.T) {
	var s sample
	require.NoError(t, Decode(Fields{"paidAt": ServerTimestamp}, &s))
	assert.True(t, s.PaidAt.IsZero())
}
