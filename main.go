package main

import (
	"context"
	"embed"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/animetinder/auth/cmd"
	"github.com/animetinder/auth/internal/api"
)

//go:embed migrations/*
var embeddedMigrations embed.FS

func main() {
	cmd.EmbeddedMigrations = embeddedMigrations

	execCtx, execCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer execCancel()

	go func() {
		<-execCtx.Done()
		logrus.Info("received graceful shutdown signal")
	}()

	if err := cmd.RootCommand().ExecuteContext(execCtx); err != nil {
		log.Fatal(err)
	}

	// wait for the server and cleanup worker to shut down
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Minute)
	defer shutdownCancel()

	api.WaitForCleanup(shutdownCtx)
}
