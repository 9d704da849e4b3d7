//go:build !darwin && !linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blemgr/internal/device"
)

func newHostDevice() (ble.Device, error) {
	return nil, device.ErrUnavailable
}
