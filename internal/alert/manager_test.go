package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mm-engine/internal/domain"
)

func TestManagerSendFansOutToChannels(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, 5*time.Minute)

	err := mgr.Send(domain.AlertEvent{
		Level:   domain.AlertWarning,
		Message: "drawdown breach",
		Fields:  map[string]any{"symbol": "BTCUSDT"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, mock.Count())
	require.Equal(t, domain.AlertWarning, mock.Alerts()[0].Level)
}

func TestManagerThrottlesRepeatAlerts(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Hour)

	ev := domain.AlertEvent{Level: domain.AlertError, Message: "risk limit hit"}
	require.NoError(t, mgr.Send(ev))
	require.NoError(t, mgr.Send(ev))

	require.Equal(t, 1, mock.Count())
}

func TestManagerResetThrottleAllowsResend(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Hour)

	ev := domain.AlertEvent{Level: domain.AlertCritical, Message: "emergency stop"}
	require.NoError(t, mgr.Send(ev))
	mgr.ResetThrottle()
	require.NoError(t, mgr.Send(ev))

	require.Equal(t, 2, mock.Count())
}

func TestFromStrategyEventFiltersNonAlertTypes(t *testing.T) {
	_, ok := FromStrategyEvent(domain.StrategyEvent{Type: domain.EventBuyOrderPlaced})
	require.False(t, ok)

	alertEv, ok := FromStrategyEvent(domain.StrategyEvent{Type: domain.EventEmergencyStop})
	require.True(t, ok)
	require.Equal(t, domain.AlertCritical, alertEv.Level)
}
