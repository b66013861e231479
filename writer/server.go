package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	hr "github.com/julienschmidt/httprouter"
	"github.com/prometheus/common/version"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"wuyrush.io/pinboard/app"
	"wuyrush.io/pinboard/common/logging"
	mw "wuyrush.io/pinboard/common/middleware"
	"wuyrush.io/pinboard/common/response"
	"wuyrush.io/pinboard/config"
	cst "wuyrush.io/pinboard/constants"
	pe "wuyrush.io/pinboard/errors"
	"wuyrush.io/pinboard/identity"
	md "wuyrush.io/pinboard/models"
	"wuyrush.io/pinboard/pins"
)

const maxJSONBodyBytes = 1 << 17

// writer handles write traffic of pinboard. Multiple writers form the service component to handle the
// application's write operations
type writer struct {
	R        *hr.Router
	Composer *pins.Composer
	Editor   *pins.Editor
	Identity identity.Provider
	// FileDir is served under /files when attachments are kept on local disk
	FileDir        string
	MaxReqBodySize int64
	Limits         formLimits
}

func (wrt *writer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wrt.R.ServeHTTP(w, r)
}

func serve() error {
	config.Setup()
	logging.SetupLog("pin-writer")
	log.WithField("build", version.Info()).Info("pin writer is starting up")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	wrt := newWriter(a)
	wrt.SetupRoutes()
	s := &http.Server{
		Addr:           viper.GetString(cst.EnvWriterAddr),
		Handler:        withCORS(wrt),
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.Addr).Info("pin writer is serving")
		errCh <- s.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("pin writer is shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func newWriter(a *app.App) *writer {
	wrt := &writer{
		Composer:       a.Composer,
		Editor:         a.Editor,
		Identity:       a.Identity,
		MaxReqBodySize: viper.GetInt64(cst.EnvReqBodySizeMaxByte),
		Limits: formLimits{
			MaxImages:     viper.GetInt(cst.EnvMaxImages),
			MaxImageBytes: viper.GetInt64(cst.EnvImageSizeMaxByte),
		},
	}
	if viper.GetString(cst.EnvFileStoreDriver) == cst.DriverLocal {
		wrt.FileDir = viper.GetString(cst.EnvLocalFileDir)
	}
	return wrt
}

func withCORS(h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   viper.GetStringSlice(cst.EnvCorsOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(h)
}

func (wrt *writer) SetupRoutes() {
	r := hr.New()
	ms := []mw.Middleware{mw.RequestLogger(), mw.PanicRecoverer()}
	r.GET("/health", mw.Chain(wrt.HandleHealth, ms...))
	r.POST("/pins", mw.Chain(wrt.HandleTaskCreatePin, ms...))
	r.PATCH("/pins/:pid", mw.Chain(wrt.HandleTaskEditPin, ms...))
	r.DELETE("/pins/:pid", mw.Chain(wrt.HandleTaskDeletePin, ms...))
	r.PUT("/pins/:pid/archive", mw.Chain(wrt.HandleTaskArchivePin, ms...))
	r.POST("/logout", mw.Chain(wrt.HandleAuthLogout, ms...))
	// attachments on local disk
	if wrt.FileDir != "" {
		r.Handler(
			http.MethodGet,
			"/files/*filepath",
			http.StripPrefix("/files/", http.FileServer(http.Dir(wrt.FileDir))),
		)
	}
	wrt.R = r
}

func (wrt *writer) HandleHealth(w http.ResponseWriter, _ *http.Request, _ hr.Params) {
	response.JSON(w, http.StatusOK, response.OK("OK", nil))
}

func (wrt *writer) HandleTaskCreatePin(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	clog := logging.WithFuncName()
	uid := identity.UserID(wrt.Identity, r)
	if uid == "" {
		response.Error(w, pe.NewUnauthorized("sign in to create pins"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, wrt.MaxReqBodySize)
	reader, err := r.MultipartReader()
	if err != nil {
		clog.WithError(err).Debug("error getting multiform reader")
		response.Error(w, pe.NewBadInput("error reading form data").WithCause(err))
		return
	}
	var (
		raw   md.RawPinPayload
		files []md.File
	)
	if perr := processParts(&formReader{r: reader}, parsePin(&raw, &files, wrt.Limits)); perr != nil {
		clog.WithField(cst.LogFieldOwnerID, uid).Warn(perr.Trace())
		response.Error(w, perr)
		return
	}
	p, perr := wrt.Composer.Submit(r.Context(), uid, raw, files)
	if perr != nil {
		response.Error(w, perr)
		return
	}
	response.JSON(w, http.StatusCreated, response.OK("pin created", p))
}

func (wrt *writer) HandleTaskEditPin(w http.ResponseWriter, r *http.Request, ps hr.Params) {
	var body struct {
		Text *string `json:"text"`
	}
	if perr := decodeJSON(w, r, &body); perr != nil {
		response.Error(w, perr)
		return
	}
	if body.Text == nil {
		response.Error(w, pe.NewBadInput("text is required"))
		return
	}
	p, perr := wrt.Editor.EditText(r.Context(), ps.ByName("pid"), identity.UserID(wrt.Identity, r), *body.Text)
	if perr != nil {
		response.Error(w, perr)
		return
	}
	response.JSON(w, http.StatusOK, response.OK("pin updated", p))
}

func (wrt *writer) HandleTaskDeletePin(w http.ResponseWriter, r *http.Request, ps hr.Params) {
	if perr := wrt.Editor.Delete(r.Context(), ps.ByName("pid"), identity.UserID(wrt.Identity, r)); perr != nil {
		response.Error(w, perr)
		return
	}
	response.JSON(w, http.StatusOK, response.OK("pin deleted", nil))
}

func (wrt *writer) HandleTaskArchivePin(w http.ResponseWriter, r *http.Request, ps hr.Params) {
	var body struct {
		Archived *bool `json:"archived"`
	}
	if perr := decodeJSON(w, r, &body); perr != nil {
		response.Error(w, perr)
		return
	}
	if body.Archived == nil {
		response.Error(w, pe.NewBadInput("archived is required"))
		return
	}
	p, perr := wrt.Editor.SetArchived(r.Context(), ps.ByName("pid"), identity.UserID(wrt.Identity, r), *body.Archived)
	if perr != nil {
		response.Error(w, perr)
		return
	}
	response.JSON(w, http.StatusOK, response.OK("pin updated", p))
}

func (wrt *writer) HandleAuthLogout(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	if perr := wrt.Identity.SignOut(w, r); perr != nil {
		response.Error(w, perr)
		return
	}
	response.JSON(w, http.StatusOK, response.OK("signed out", nil))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) *pe.PinErr {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var mbErr *http.MaxBytesError
		switch {
		case errors.As(err, &mbErr):
			return pe.NewOversized(cst.ErrMsgRequestBodyTooLarge)
		case err == io.EOF:
			return pe.NewBadInput("request body is empty")
		default:
			return pe.NewBadInput("malformed request body").WithCause(err)
		}
	}
	return nil
}
