package alert

import (
	"fmt"

	"mm-engine/internal/domain"
	"mm-engine/internal/logging"
)

// LogChannel routes alerts through the ambient structured logger instead
// of a bare stdlib logger, so alerts end up in the same sink and format as
// every other log line.
type LogChannel struct {
	log  *logging.Logger
	name string
}

func NewLogChannel(name string, log *logging.Logger) *LogChannel {
	return &LogChannel{log: log, name: name}
}

func (c *LogChannel) Send(ev domain.AlertEvent) error {
	fields := make(map[string]any, len(ev.Fields)+1)
	for k, v := range ev.Fields {
		fields[k] = v
	}
	fields["level"] = string(ev.Level)
	c.log.LogRisk(ev.Message, fields)
	return nil
}

func (c *LogChannel) Name() string { return c.name }

// MockChannel records alerts for assertions in tests.
type MockChannel struct {
	name      string
	alerts    []domain.AlertEvent
	shouldErr bool
}

func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

func (c *MockChannel) Send(ev domain.AlertEvent) error {
	if c.shouldErr {
		return fmt.Errorf("mock channel error")
	}
	c.alerts = append(c.alerts, ev)
	return nil
}

func (c *MockChannel) Name() string                  { return c.name }
func (c *MockChannel) Alerts() []domain.AlertEvent    { return c.alerts }
func (c *MockChannel) SetShouldError(shouldErr bool)  { c.shouldErr = shouldErr }
func (c *MockChannel) Clear()                         { c.alerts = nil }
func (c *MockChannel) Count() int                     { return len(c.alerts) }
