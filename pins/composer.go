package pins

import (
	"context"

	"wuyrush.io/pinboard/common/logging"
	cst "wuyrush.io/pinboard/constants"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
	"wuyrush.io/pinboard/stores"
)

// Composer creates pins out of client submissions
type Composer struct {
	Validator *Validator
	Resolver  *AttachmentResolver
	Pins      stores.PinStore
}

// Submit validates raw, uploads files and persists the resulting pin owned by ownerID. Either a complete pin is
// created or nothing is: payload is validated before any upload starts, and uploads are discarded when the pin
// fails to persist. Files failing to upload are left out of the pin.
func (c *Composer) Submit(ctx context.Context, ownerID string, raw md.RawPinPayload, files []md.File) (*md.Pin, *pe.PinErr) {
	if ownerID == "" {
		return nil, pe.NewUnauthorized("sign in to create pins")
	}
	clog := logging.WithFuncName().WithField(cst.LogFieldOwnerID, ownerID)
	vp, perr := c.Validator.Validate(raw)
	if perr != nil {
		clog.WithError(perr).Debug("rejected invalid pin payload")
		return nil, perr
	}
	ups := c.Resolver.resolve(ctx, files)
	if len(ups) < len(files) {
		clog.Warnf("%d out of %d attachments failed to upload", len(files)-len(ups), len(files))
	}
	urls := make([]string, len(ups))
	for i, u := range ups {
		urls[i] = u.url
	}
	p, perr := c.Pins.Create(ctx, ownerID, vp, urls)
	if perr != nil {
		clog.Error(perr.Trace())
		c.Resolver.discard(ctx, ups)
		return nil, perr
	}
	clog.WithField(cst.LogFieldPinID, p.ID).Info("pin created")
	return p, nil
}
