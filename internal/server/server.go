// Package server exposes the upload endpoint used to hand narration audio to
// the avatar service over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Server stores uploads under a single directory and serves them back.
type Server struct {
	uploadDir string
	logger    *zap.Logger
	router    *gin.Engine
}

// New builds the router. The upload directory is created when missing.
func New(uploadDir string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create upload directory")
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		uploadDir: uploadDir,
		logger:    logger.With(zap.String("component", "server")),
	}
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.POST("/upload", s.handleUpload)
	router.POST("/upload/", s.handleUpload)
	router.Static("/uploads", uploadDir)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router = router
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr), zap.String("dir", s.uploadDir))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		<-errCh
		return nil
	}
}

func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(file.Filename, `\`, "/")))
	if name == "/" || name == "." || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}

	location := filepath.Join(s.uploadDir, name)
	if err := c.SaveUploadedFile(file, location); err != nil {
		s.logger.Error("save upload failed", zap.String("file", name), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("upload stored", zap.String("file", location), zap.String("size", humanize.Bytes(uint64(file.Size))))
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("File uploaded successfully at %s", location),
		"path":    "/uploads/" + name,
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
