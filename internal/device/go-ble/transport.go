// Package goble implements device.Transport on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/device"
)

const DefaultScanTimeout = 10 * time.Second

// DeviceFactory creates the host ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newHostDevice

// scanResult is the part of an advertisement RequestDevice cares about.
type scanResult struct {
	addr        string
	name        string
	connectable bool
	services    []string
}

// radio is the slice of ble.Device used by the transport.
type radio interface {
	Scan(ctx context.Context, handler func(scanResult)) error
	Dial(ctx context.Context, addr string) (client, error)
}

// client is the slice of ble.Client used by sessions.
type client interface {
	Addr() ble.Addr
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

type hostRadio struct {
	dev ble.Device
}

func (r hostRadio) Scan(ctx context.Context, handler func(scanResult)) error {
	return r.dev.Scan(ctx, false, func(adv ble.Advertisement) {
		res := scanResult{
			addr:        adv.Addr().String(),
			name:        adv.LocalName(),
			connectable: adv.Connectable(),
		}
		for _, u := range adv.Services() {
			res.services = append(res.services, device.CanonicalUUID(u.String()))
		}
		handler(res)
	})
}

func (r hostRadio) Dial(ctx context.Context, addr string) (client, error) {
	cl, err := r.dev.Dial(ctx, ble.NewAddr(addr))
	if err != nil {
		return nil, err
	}
	return cl, nil
}

// Options narrows which advertisement RequestDevice picks.
type Options struct {
	ScanTimeout time.Duration
	NamePrefix  string
	ServiceUUID string
}

// Transport is safe for concurrent use. The host adapter is opened on first use.
type Transport struct {
	opts   Options
	logger *logrus.Logger

	mu       sync.Mutex
	opened   bool
	radio    radio
	radioErr error
}

func New(opts Options, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = DefaultScanTimeout
	}
	return &Transport{opts: opts, logger: logger}
}

func (t *Transport) open() (radio, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.opened {
		t.opened = true
		dev, err := DeviceFactory()
		if err != nil {
			t.radioErr = NormalizeError(err)
			t.logger.WithField("error", err).Error("Failed to open BLE adapter")
		} else {
			t.radio = hostRadio{dev: dev}
		}
	}
	if t.radioErr != nil {
		if errors.Is(t.radioErr, device.ErrUnavailable) {
			return nil, t.radioErr
		}
		return nil, fmt.Errorf("%w: %v", device.ErrUnavailable, t.radioErr)
	}
	return t.radio, nil
}

// Available reports whether the host adapter could be opened.
func (t *Transport) Available() bool {
	_, err := t.open()
	return err == nil
}

func (t *Transport) matches(res scanResult) bool {
	if !res.connectable {
		return false
	}
	if t.opts.NamePrefix != "" && !strings.HasPrefix(res.name, t.opts.NamePrefix) {
		return false
	}
	if t.opts.ServiceUUID != "" {
		want := device.CanonicalUUID(t.opts.ServiceUUID)
		for _, s := range res.services {
			if s == want {
				return true
			}
		}
		return false
	}
	return true
}

// RequestDevice scans until the first matching connectable advertisement or
// the scan timeout.
func (t *Transport) RequestDevice(ctx context.Context) (device.Device, error) {
	r, err := t.open()
	if err != nil {
		return device.Device{}, err
	}

	scanCtx, cancel := context.WithTimeout(ctx, t.opts.ScanTimeout)
	defer cancel()

	found := make(chan scanResult, 1)
	t.logger.WithField("timeout", t.opts.ScanTimeout).Info("Scanning for devices...")
	scanErr := r.Scan(scanCtx, func(res scanResult) {
		if !t.matches(res) {
			return
		}
		select {
		case found <- res:
			cancel()
		default:
		}
	})

	select {
	case res := <-found:
		t.logger.WithFields(logrus.Fields{
			"address": res.addr,
			"name":    res.name,
		}).Info("Device selected")
		return device.Device{ID: res.addr, Name: res.name}, nil
	default:
	}

	if err := ctx.Err(); err != nil {
		return device.Device{}, err
	}
	if scanErr != nil && !errors.Is(scanErr, context.DeadlineExceeded) && !errors.Is(scanErr, context.Canceled) {
		return device.Device{}, NormalizeError(scanErr)
	}
	return device.Device{}, fmt.Errorf("%w: nothing matching advertised within %s", device.ErrDeviceNotFound, t.opts.ScanTimeout)
}

// Connect dials the peripheral and discovers its full profile.
func (t *Transport) Connect(ctx context.Context, id string) (device.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	r, err := t.open()
	if err != nil {
		return nil, err
	}

	logger := t.logger.WithField("address", id)
	logger.Debug("Dialing BLE device...")
	cl, err := r.Dial(ctx, id)
	if err != nil {
		logger.WithField("error", err).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", id, NormalizeError(err))
	}

	logger.Debug("Discovering services and characteristics...")
	profile, err := cl.DiscoverProfile(true)
	if err != nil {
		logger.WithField("error", err).Error("Failed to discover profile")
		if cancelErr := cl.CancelConnection(); cancelErr != nil {
			logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	logger.WithField("services", len(profile.Services)).Info("BLE device connected")
	return newSession(id, cl, profile, t.logger), nil
}
