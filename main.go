package main

import (
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/infrablocks/concourse-aws-entrypoint/cmd"
	"github.com/infrablocks/concourse-aws-entrypoint/util"
)

var Version string
var Buildtime string
var Commit string

const sentryFlushTimeout = 2 * time.Second

func main() {
	os.Exit(execute())
}

// execute runs the app, returning its exit code once sentry events
// have been flushed.
func execute() int {
	if err := setupSentry(); err != nil {
		log.Fatalf("sentry init failed: %s", err)
	}

	defer sentry.Flush(sentryFlushTimeout)
	defer reportPanic()

	appVersion := "local"
	if Version != "" {
		appVersion = Version
	}

	appBuildtime, _ := time.Parse(time.RFC3339, Buildtime)

	return cmd.Execute(cmd.ExecuteParams{
		Version:  appVersion,
		Compiled: appBuildtime,
	})
}

func setupSentry() error {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}

	environment := os.Getenv("SENTRY_ENVIRONMENT")
	if environment == "" {
		environment = "local"
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Debug:       util.Truthy(os.Getenv("SENTRY_DEBUG")),
		Environment: environment,
		Release:     Commit,
		ServerName:  os.Getenv("HOSTNAME"),
	})
}

// reportPanic captures a panic and re-raises it once it is flushed.
func reportPanic() {
	if r := recover(); r != nil {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(sentryFlushTimeout)
		panic(r)
	}
}
