// Package gpio drives the emergency alarm relay with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Alarm is a single digital output that is raised while the boiler is in
// emergency stop.
type Alarm interface {
	// Set drives the output: true = alarm raised.
	Set(on bool) error

	// Close lowers the output and releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// NopAlarm is used when no alarm pin is configured.
type NopAlarm struct{}

// Set does nothing.
func (NopAlarm) Set(bool) error { return nil }

// Close does nothing.
func (NopAlarm) Close() error { return nil }

// Follower remembers the last driven state so the line is only written on
// change.
type Follower struct {
	alarm Alarm
	on    bool
	known bool
}

// NewFollower wraps an alarm output.
func NewFollower(a Alarm) *Follower {
	return &Follower{alarm: a}
}

// Update drives the alarm to on if it differs from the last written state.
func (f *Follower) Update(on bool) error {
	if f.known && f.on == on {
		return nil
	}
	if err := f.alarm.Set(on); err != nil {
		return err
	}
	f.on, f.known = on, true
	return nil
}

// On reports the last state written to the line.
func (f *Follower) On() bool {
	return f.on
}
