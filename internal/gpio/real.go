//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealAlarm drives an alarm relay using Linux GPIO character device.
type RealAlarm struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealAlarm requests pin on chip as an output, initially low.
// With activeLow the relay is energised by driving the pin to 0.
func NewRealAlarm(chipName string, pin int, activeLow bool) (*RealAlarm, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(pin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request alarm pin %d: %w", pin, err)
	}

	return &RealAlarm{chip: chip, line: line}, nil
}

// Set drives the alarm line.
func (a *RealAlarm) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := a.line.SetValue(v); err != nil {
		return fmt.Errorf("set alarm pin: %w", err)
	}
	return nil
}

// Close lowers the alarm and releases GPIO resources.
// The pin is returned to input with pull-down (matching Pi boot defaults)
// so the relay is not left energised across a reboot.
func (a *RealAlarm) Close() error {
	var errs []error

	if a.line != nil {
		if err := a.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("lower alarm pin: %w", err))
		}
		if err := a.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure alarm pin: %w", err))
		}
		if err := a.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close alarm pin: %w", err))
		}
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
