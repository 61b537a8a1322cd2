package device

import "github.com/fverao/powercapd/internal/errors"

const (
	ErrScanFailed   = errors.ErrDeviceScan
	ErrNotFound     = errors.ErrDeviceNotFound
	ErrBusy         = errors.ErrDeviceBusy
	ErrReadFailed   = errors.ErrDeviceIO
	ErrNotStreaming = errors.ErrorCode("device_not_streaming")
	ErrBadParameter = errors.ErrInvalidArgument
)
