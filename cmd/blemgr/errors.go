package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blemgr/internal/device"
)

// FormatUserError adds a hint for the failures users can do something about.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrUnavailable):
		return fmt.Sprintf("%s (is the Bluetooth adapter powered on?)", err)
	case errors.Is(err, device.ErrDeviceNotFound):
		return fmt.Sprintf("%s (use 'blemgr list' to see known devices or 'blemgr scan' to add one)", err)
	case device.IsConnectionState(err, device.NotConnected):
		return fmt.Sprintf("%s (connect the device first)", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s (operation timed out)", err)
	default:
		return err.Error()
	}
}
