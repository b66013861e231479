package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"

	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

/*
	Utilities to stream-process http multipart form data of a pin submission.

	NOTE the order in which parts get processed is the same as the tree order in which corresponding
	entries are placed in the html DOM. See
	https://html.spec.whatwg.org/multipage/form-control-infrastructure.html#multipart-form-data

	NOTE It is the service that dictates the form processing logic instead of client. Fields are expected in
	the order of pinForm below. Optional fields may be left out, while unknown or out of order fields fail the
	request. This prevents the service from blindly reading and processing whatever data sent from the client,
	which is what http.ParseMultipartForm does.
*/

const (
	formFieldText            = "text"
	formFieldMusicLink       = "musicLink"
	formFieldGifURL          = "gifUrl"
	formFieldSticker         = "sticker"
	formFieldBackgroundColor = "backgroundColor"
	formFieldImages          = "images"
)

type formLimits struct {
	MaxImages     int
	MaxImageBytes int64
}

// formReader is a multipart reader able to look at the upcoming part without consuming it
type formReader struct {
	r    *multipart.Reader
	next *multipart.Part
	eof  bool
}

func (fr *formReader) peek() (*multipart.Part, *pe.PinErr) {
	if fr.next != nil || fr.eof {
		return fr.next, nil
	}
	p, err := fr.r.NextPart()
	if err == io.EOF {
		fr.eof = true
		return nil, nil
	}
	if err != nil {
		return nil, partErr("error reading form part", err)
	}
	fr.next = p
	return p, nil
}

func (fr *formReader) take() *multipart.Part {
	p := fr.next
	fr.next = nil
	return p
}

func processParts(r *formReader, ps ...partProcessor) *pe.PinErr {
	for _, p := range ps {
		if err := p(r); err != nil {
			return err
		}
	}
	return nil
}

type partProcessor func(*formReader) *pe.PinErr

// parsePin returns the processor reading a whole pin submission into raw and files
func parsePin(raw *md.RawPinPayload, files *[]md.File, limits formLimits) partProcessor {
	type partProcCfg struct {
		FormName   string  // form field name to process
		LimitBytes int64   // form field value size limit in bytes
		Dst        *string // where the value goes
	}
	// generate logic to process individual non-file form field
	gen := func(cfg partProcCfg) partProcessor {
		return func(r *formReader) *pe.PinErr {
			part, perr := r.peek()
			if perr != nil {
				return perr
			}
			if part == nil || part.FormName() != cfg.FormName {
				// left out by client
				return nil
			}
			defer r.take().Close()
			b, err := ioutil.ReadAll(NewLimitReader(part, cfg.LimitBytes))
			if err != nil {
				return partErr(fmt.Sprintf("failed to read value of form field %s", cfg.FormName), err)
			}
			*cfg.Dst = string(b)
			return nil
		}
	}
	return func(r *formReader) *pe.PinErr {
		return processParts(r,
			gen(partProcCfg{FormName: formFieldText, LimitBytes: 1 << 16, Dst: &raw.TextContent}),
			gen(partProcCfg{FormName: formFieldMusicLink, LimitBytes: 1 << 11, Dst: &raw.MusicLink}),
			gen(partProcCfg{FormName: formFieldGifURL, LimitBytes: 1 << 11, Dst: &raw.GifURL}),
			gen(partProcCfg{FormName: formFieldSticker, LimitBytes: 1 << 6, Dst: &raw.Sticker}),
			gen(partProcCfg{FormName: formFieldBackgroundColor, LimitBytes: 1 << 5, Dst: &raw.BackgroundColor}),
			parseImages(files, limits),
		)
	}
}

// parseImages reads every remaining part as an image. Images are buffered in memory, bounded by limits, so that
// they can be uploaded concurrently afterwards.
func parseImages(files *[]md.File, limits formLimits) partProcessor {
	return func(r *formReader) *pe.PinErr {
		for {
			part, perr := r.peek()
			if perr != nil {
				return perr
			}
			if part == nil {
				return nil
			}
			if name := part.FormName(); name != formFieldImages {
				return pe.NewBadInput(fmt.Sprintf("unexpected form field %s", name))
			}
			if len(*files) >= limits.MaxImages {
				return pe.NewBadInput(fmt.Sprintf("a pin carries at most %d images", limits.MaxImages))
			}
			part = r.take()
			b, err := ioutil.ReadAll(NewLimitReader(part, limits.MaxImageBytes))
			part.Close()
			if err != nil {
				return partErr(fmt.Sprintf("failed to read image %s", part.FileName()), err)
			}
			if len(b) == 0 {
				// file inputs left blank still send an empty part
				continue
			}
			*files = append(*files, md.File{
				Name:        part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Body:        bytes.NewReader(b),
			})
		}
	}
}

// partErr tells oversized data apart from malformed data
func partErr(msg string, err error) *pe.PinErr {
	var perr *pe.PinErr
	if errors.As(err, &perr) && perr.Code == pe.ErrCodeOversized {
		return pe.NewOversized(msg + ": data too large")
	}
	var mbErr *http.MaxBytesError
	if errors.As(err, &mbErr) {
		return pe.NewOversized(fmt.Sprintf("request oversized. Request size must be under %d bytes", mbErr.Limit))
	}
	return pe.NewBadInput(msg).WithCause(err)
}

// LimitReader dedicates to detecting oversized data
type LimitReader struct {
	R io.Reader // underlying reader
	n int64     // max bytes remaining
}

func NewLimitReader(r io.Reader, max int64) *LimitReader {
	// idea: try reading one more byte above given limit from given reader. If there is no more data left from r
	// then r shall return (0, io.EOF), otherwise it can return more bytes and potentially a non-nil error. We
	// take the risk of rejecting a legit request when the last read attempt returns non-io.EOF error.
	// skip overflow check since we won't read such huge amount of data in practice
	return &LimitReader{R: r, n: max + 1}
}

func (r *LimitReader) Read(p []byte) (n int, err error) {
	// tweak based on io.LimitReader.Read
	if int64(len(p)) > r.n {
		p = p[0:r.n]
	}
	n, err = r.R.Read(p)
	r.n -= int64(n)
	if r.n <= 0 {
		return 0, pe.NewOversized("data too large")
	}
	return
}
