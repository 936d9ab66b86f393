package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"localchat/bot"
	"localchat/config"
	"localchat/control"
	"localchat/session"
	"localchat/store"
)

func main() {
	cfg := config.Load()

	logger := newLogger()
	defer logger.Sync()

	st, err := store.New(cfg.StorePath)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("path", cfg.StorePath), zap.Error(err))
	}
	defer st.Close()

	ss, err := store.NewSessionStore(cfg.SessionDir)
	if err != nil {
		logger.Fatal("failed to prepare session dir", zap.String("dir", cfg.SessionDir), zap.Error(err))
	}

	gemini := bot.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel, logger)

	client, err := session.New(st, ss, gemini, cfg.PollInterval, logger)
	if err != nil {
		logger.Fatal("failed to initialize session", zap.Error(err))
	}

	os.Remove(cfg.SocketPath)
	listener, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		logger.Fatal("failed to open control socket", zap.String("path", cfg.SocketPath), zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutting down", zap.String("signal", sig.String()))
		client.Close()
		listener.Close()
		os.Remove(cfg.SocketPath)
		st.Close()
		os.Exit(0)
	}()

	logger.Info("session ready",
		zap.String("store", cfg.StorePath),
		zap.String("socket", cfg.SocketPath),
		zap.Duration("poll", cfg.PollInterval))

	srv := control.New(client, logger)
	if err := srv.Serve(listener); err != nil {
		logger.Fatal("control socket failed", zap.Error(err))
	}
}

func newLogger() *zap.Logger {
	zapConfig := zap.NewProductionConfig()
	if os.Getenv("LOCALCHAT_DEBUG") != "" {
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zapConfig.Build()
	if err != nil {
		os.Exit(1)
	}
	return logger
}
