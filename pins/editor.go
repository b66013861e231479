package pins

import (
	"context"

	"wuyrush.io/pinboard/common/logging"
	cst "wuyrush.io/pinboard/constants"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
	"wuyrush.io/pinboard/stores"
)

// Editor mutates existing pins on behalf of their owners
type Editor struct {
	Pins   stores.PinStore
	Window EditWindow
	Clock  Clock
}

// EditText replaces text of the pin. Only the owner may do so and only within the edit window.
func (e *Editor) EditText(ctx context.Context, pinID, userID, text string) (*md.Pin, *pe.PinErr) {
	text, perr := ValidateText(text)
	if perr != nil {
		return nil, perr
	}
	if _, perr := e.mutable(ctx, pinID, userID); perr != nil {
		return nil, perr
	}
	p, perr := e.Pins.UpdateText(ctx, pinID, userID, text)
	if perr != nil {
		return nil, perr
	}
	logging.WithFuncName().WithField(cst.LogFieldPinID, pinID).Info("pin text updated")
	return p, nil
}

// Delete removes the pin. Only the owner may do so and only within the edit window.
func (e *Editor) Delete(ctx context.Context, pinID, userID string) *pe.PinErr {
	if _, perr := e.mutable(ctx, pinID, userID); perr != nil {
		return perr
	}
	if perr := e.Pins.Delete(ctx, pinID, userID); perr != nil {
		return perr
	}
	logging.WithFuncName().WithField(cst.LogFieldPinID, pinID).Info("pin deleted")
	return nil
}

// SetArchived flips the archive flag of the pin. Archiving only changes visibility, so it is open to the owner
// regardless of the edit window.
func (e *Editor) SetArchived(ctx context.Context, pinID, userID string, archived bool) (*md.Pin, *pe.PinErr) {
	if userID == "" {
		return nil, pe.NewUnauthorized("sign in to archive pins")
	}
	return e.Pins.SetArchived(ctx, pinID, userID, archived)
}

// mutable fetches the pin and checks userID may mutate it as of now
func (e *Editor) mutable(ctx context.Context, pinID, userID string) (*md.Pin, *pe.PinErr) {
	if userID == "" {
		return nil, pe.NewUnauthorized("sign in to change pins")
	}
	p, perr := e.Pins.Get(ctx, pinID)
	if perr != nil {
		return nil, perr
	}
	if !p.OwnedBy(userID) {
		return nil, pe.NewForbidden("pin can only be changed by its owner")
	}
	if !e.Window.CanMutate(p, e.Clock.now()) {
		return nil, pe.NewForbidden("pin can no longer be changed once its edit window closed")
	}
	return p, nil
}
