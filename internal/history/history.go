package history

import (
	"github.com/fverao/powercapd/internal/errors"
	"github.com/fverao/powercapd/internal/logger"
)

// No-op implementation used when session history is disabled
type noopRecorder struct{}

func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Session history disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (*noopRecorder) SessionStarted(_ Session) error {
	return nil
}

func (*noopRecorder) SessionEnded(_ Session) error {
	return nil
}

func (*noopRecorder) Close() error {
	return nil
}
