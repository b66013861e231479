package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/common/version"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"wuyrush.io/pinboard/app"
	"wuyrush.io/pinboard/common/logging"
	"wuyrush.io/pinboard/common/response"
	"wuyrush.io/pinboard/config"
	cst "wuyrush.io/pinboard/constants"
	pe "wuyrush.io/pinboard/errors"
	"wuyrush.io/pinboard/identity"
	"wuyrush.io/pinboard/pins"
	st "wuyrush.io/pinboard/stores"
)

const ctxKeyViewerID = "viewerID"

// reader handles read traffic of pinboard. Multiple readers form the service component to handle the
// application's read operations
type reader struct {
	Router   *gin.Engine
	Pins     st.PinStore
	Feeds    *pins.FeedAssembler
	Identity identity.Provider
}

func serve() error {
	config.Setup()
	logging.SetupLog("pin-reader")
	log.WithField("build", version.Info()).Info("pin reader is starting up")
	if !viper.GetBool(cst.EnvVerbose) {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rd := &reader{Pins: a.Pins, Feeds: a.Feeds, Identity: a.Identity}
	rd.SetupRoutes()
	s := &http.Server{
		Addr: viper.GetString(cst.EnvReaderAddr),
		Handler: cors.New(cors.Options{
			AllowedOrigins:   viper.GetStringSlice(cst.EnvCorsOrigins),
			AllowedMethods:   []string{http.MethodGet},
			AllowedHeaders:   []string{"Authorization"},
			AllowCredentials: true,
		}).Handler(rd.Router),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.Addr).Info("pin reader is serving")
		errCh <- s.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("pin reader is shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (r *reader) SetupRoutes() {
	rt := gin.New()
	rt.Use(requestLogger(), gin.Recovery(), r.identify)

	rt.GET("/health", r.HandleHealth)
	rt.GET("/pins/:pid", r.HandleTaskGetPin)
	rt.GET("/feed", r.HandleTaskListOwnPins)
	rt.GET("/discover", r.HandleTaskListRecentPins)
	rt.GET("/profiles/:username", r.HandleTaskListProfilePins)
	r.Router = rt
}

// identify resolves the signed-in viewer of the request, if any
func (r *reader) identify(c *gin.Context) {
	c.Set(ctxKeyViewerID, identity.UserID(r.Identity, c.Request))
	c.Next()
}

func (r *reader) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, response.OK("OK", nil))
}

func (r *reader) HandleTaskGetPin(c *gin.Context) {
	ctx := c.Request.Context()
	p, perr := r.Pins.Get(ctx, c.Param("pid"))
	if perr != nil {
		fail(c, perr)
		return
	}
	item, perr := r.Feeds.Item(ctx, p, c.GetString(ctxKeyViewerID))
	if perr != nil {
		fail(c, perr)
		return
	}
	c.JSON(http.StatusOK, response.OK("", item))
}

func (r *reader) HandleTaskListOwnPins(c *gin.Context) {
	items, perr := r.Feeds.OwnFeed(c.Request.Context(), c.GetString(ctxKeyViewerID))
	if perr != nil {
		fail(c, perr)
		return
	}
	c.JSON(http.StatusOK, response.OK("", items))
}

func (r *reader) HandleTaskListRecentPins(c *gin.Context) {
	items, perr := r.Feeds.DiscoveryFeed(c.Request.Context(), c.GetString(ctxKeyViewerID))
	if perr != nil {
		fail(c, perr)
		return
	}
	c.JSON(http.StatusOK, response.OK("", items))
}

func (r *reader) HandleTaskListProfilePins(c *gin.Context) {
	items, perr := r.Feeds.ProfileFeed(c.Request.Context(), c.Param("username"), c.GetString(ctxKeyViewerID))
	if perr != nil {
		fail(c, perr)
		return
	}
	c.JSON(http.StatusOK, response.OK("", items))
}

func fail(c *gin.Context, perr *pe.PinErr) {
	if perr.StatusCode() >= http.StatusInternalServerError {
		logging.WithFuncName().WithField("path", c.Request.URL.Path).Error(perr.Trace())
	}
	c.AbortWithStatusJSON(perr.StatusCode(), response.Failed(perr))
}

// requestLogger logs method, path, response status and latency of every request through logrus
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"httpMethod": c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latencyMs":  time.Since(start).Milliseconds(),
		}).Info("request served")
	}
}
