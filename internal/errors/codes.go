package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "invalid_configuration"
	ErrMissingConfig ErrorCode = "missing_configuration"
	ErrBindFlags     ErrorCode = "bind_flags_failed"
	ErrReadConfig    ErrorCode = "read_config_failed"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Capture session errors
	ErrAlreadyRunning ErrorCode = "capture_already_running"
	ErrNotRunning     ErrorCode = "capture_not_running"

	// Device errors
	ErrDeviceNotFound ErrorCode = "device_not_found"
	ErrDeviceIO       ErrorCode = "device_io_error"
	ErrDeviceBusy     ErrorCode = "device_busy"
	ErrDeviceScan     ErrorCode = "device_scan_failed"

	// Persistence errors
	ErrPersistence   ErrorCode = "persistence_failed"
	ErrSchemaInvalid ErrorCode = "schema_invalid"

	// Notification errors
	ErrSubscriber ErrorCode = "subscriber_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrUnavailable:     "Service unavailable",
	ErrInvalidConfig:   "Invalid configuration",
	ErrMissingConfig:   "Missing configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrReadConfig:      "Failed to read configuration",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrAlreadyRunning:  "Capture already running",
	ErrNotRunning:      "No capture session running",
	ErrDeviceNotFound:  "No device found",
	ErrDeviceIO:        "Device I/O failed",
	ErrDeviceBusy:      "Device is busy",
	ErrDeviceScan:      "Device scan failed",
	ErrPersistence:     "Failed to persist record",
	ErrSchemaInvalid:   "Record schema mismatch",
	ErrSubscriber:      "Subscriber callback failed",
	ErrOperationFailed: "Operation failed",
	ErrTimeout:         "Operation timed out",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
