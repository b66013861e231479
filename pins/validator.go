// Package pins vends the pin lifecycle: payload validation, the edit window, attachment upload, pin composing and
// mutation, and feed assembly.
package pins

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	cst "wuyrush.io/pinboard/constants"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

var (
	// Stickers is the sticker palette offered by the composer
	Stickers = []string{
		"🌸", "💕", "😊", "💜", "🌹", "🔥", "🌙", "🦋", "⭐", "✨", "🌺", "💖", "💗", "🦄", "🎀", "🌼",
		"🌻", "🌷", "💐", "🌈", "💫", "🎈", "🎉", "💝",
	}
	// Colors is the background color palette offered by the composer
	Colors = []string{"#FFF9E6", "#FFB6C1", "#FFC0CB", "#F5F5DC", "#E6E6FA"}
)

// links holds the optional URL fields of a pin payload for struct validation
type links struct {
	MusicLink string `validate:"omitempty,url,weburl"`
	GifURL    string `validate:"omitempty,url,weburl"`
}

// isWebURL reports whether the field is an absolute http(s) URL naming a host
func isWebURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.Hostname() == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Validator checks and normalizes raw pin payloads. It is safe for concurrent use.
type Validator struct {
	// StrictPalette restricts sticker and background color to Stickers and Colors
	StrictPalette bool

	v        *validator.Validate
	stickers map[string]struct{}
	colors   map[string]struct{}
}

func NewValidator(strictPalette bool) *Validator {
	toSet := func(ss []string) map[string]struct{} {
		m := make(map[string]struct{}, len(ss))
		for _, s := range ss {
			m[s] = struct{}{}
		}
		return m
	}
	v := validator.New()
	// the url tag accepts any scheme and no host
	if err := v.RegisterValidation("weburl", isWebURL); err != nil {
		panic(err)
	}
	return &Validator{
		StrictPalette: strictPalette,
		v:             v,
		stickers:      toSet(Stickers),
		colors:        toSet(Colors),
	}
}

// Validate turns raw into a ValidatedPin. Text and links lose surrounding whitespace. Sticker and background color
// are kept as sent unless the palette is enforced, and a missing background color falls back to the default one.
func (v *Validator) Validate(raw md.RawPinPayload) (*md.ValidatedPin, *pe.PinErr) {
	text, perr := ValidateText(raw.TextContent)
	if perr != nil {
		return nil, perr
	}
	l := links{
		MusicLink: strings.TrimSpace(raw.MusicLink),
		GifURL:    strings.TrimSpace(raw.GifURL),
	}
	if err := v.v.Struct(l); err != nil {
		field := "link"
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			field = verrs[0].Field()
		}
		return nil, pe.NewMalformedURL(field + " is not a valid absolute URL").WithCause(err)
	}
	vp := &md.ValidatedPin{
		TextContent:     text,
		MusicLink:       l.MusicLink,
		GifURL:          l.GifURL,
		Sticker:         raw.Sticker,
		BackgroundColor: raw.BackgroundColor,
	}
	if vp.BackgroundColor == "" {
		vp.BackgroundColor = cst.DefaultColor
	}
	if v.StrictPalette {
		if _, ok := v.stickers[vp.Sticker]; vp.Sticker != "" && !ok {
			return nil, pe.NewOffPalette("sticker " + vp.Sticker + " is not in the palette")
		}
		if _, ok := v.colors[strings.ToUpper(vp.BackgroundColor)]; !ok {
			return nil, pe.NewOffPalette("background color " + vp.BackgroundColor + " is not in the palette")
		}
		vp.BackgroundColor = strings.ToUpper(vp.BackgroundColor)
	}
	return vp, nil
}

// ValidateText returns text without surrounding whitespace, or an EmptyContent error if nothing is left
func ValidateText(text string) (string, *pe.PinErr) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", pe.NewEmptyContent("pin text cannot be empty")
	}
	return trimmed, nil
}
