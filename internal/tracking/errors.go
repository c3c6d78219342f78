package tracking

import (
	"github.com/Capricia-k/WoSport/internal/location"

	"github.com/pkg/errors"
)

var (
	ErrPermissionDenied     = location.ErrPermissionDenied
	ErrSessionCreateFailed  = errors.New("failed to create session")
	ErrSampleDeliveryFailed = errors.New("failed to deliver sample")
	ErrBusy                 = errors.New("session is starting or stopping")
	ErrStopping             = errors.New("session is stopping")
	ErrNotIdle              = errors.New("controller is not idle")
)
