package appointments

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusNoShow, StatusAttended}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusConfirmed, StatusAttended}:  true,
		{StatusConfirmed, StatusCancelled}: true,
		{StatusConfirmed, StatusNoShow}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusNoShow.Terminal())
	assert.True(t, StatusAttended.Terminal())
	assert.False(t, Status("archived").Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Confirmed ")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, s)

	_, err = ParseStatus("rescheduled")
	assert.Error(t, err)

	var decoded struct {
		Status Status `json:"status"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"status":"done"}`), &decoded))
	require.NoError(t, json.Unmarshal([]byte(`{"status":"no_show"}`), &decoded))
	assert.Equal(t, StatusNoShow, decoded.Status)
}

func TestSourceInitialStatus(t *testing.T) {
	assert.Equal(t, StatusPending, SourcePublic.InitialStatus())
	assert.Equal(t, StatusPending, SourceAssistant.InitialStatus())
	assert.Equal(t, StatusConfirmed, SourceStaff.InitialStatus())
}
