package coordinator

import (
	"errors"

	"autoposter/internal/drive"
	"autoposter/internal/effects"
	"autoposter/internal/models"
	"autoposter/internal/sheets"
)

// Error taxonomy. Only ErrConfig stops the process, and only at startup;
// everything else ends a single invocation with a message.
var (
	ErrConfig        = models.ErrConfig
	ErrQuery         = sheets.ErrQuery
	ErrAssetNotFound = drive.ErrAssetNotFound
	ErrDecode        = effects.ErrDecode

	ErrUpdate          = errors.New("queue status update failed")
	ErrPublish         = errors.New("publish failed")
	ErrClaimed         = errors.New("row is claimed by another invocation")
	ErrUnknownEffect   = errors.New("unknown effect")
	ErrUnknownPlatform = errors.New("unknown platform")
)
