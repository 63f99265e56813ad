package messaging

import "context"

// DeviceMessenger delivers chat messages to participant devices.
type DeviceMessenger interface {
	SendText(ctx context.Context, deviceAddress, text string) error
	SendObject(ctx context.Context, deviceAddress, msgType string, payload any) error
}
