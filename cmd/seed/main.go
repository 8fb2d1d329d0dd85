package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/yungbote/classsync/internal/data/backend"
	"github.com/yungbote/classsync/internal/platform/logger"
	"github.com/yungbote/classsync/internal/seed"
)

func main() {
	var file string
	var migrate bool
	flag.StringVar(&file, "file", "", "seed YAML file (default: built-in course)")
	flag.BoolVar(&migrate, "migrate", false, "run auto-migration and install the change feed first")
	flag.Parse()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	f, err := readSeed(file)
	if err != nil {
		log.Error("read seed", "file", file, "error", err)
		os.Exit(1)
	}

	db, err := backend.OpenPostgres(backend.PostgresDSN(log))
	if err != nil {
		log.Error("open postgres", "error", err)
		os.Exit(1)
	}
	if migrate {
		if err := backend.AutoMigrate(db); err != nil {
			log.Error("migrate", "error", err)
			os.Exit(1)
		}
		channel := os.Getenv("FEED_CHANNEL")
		if channel == "" {
			channel = "row_changes"
		}
		if err := backend.InstallChangeFeed(db, channel); err != nil {
			log.Error("install change feed", "error", err)
			os.Exit(1)
		}
	}

	report, err := seed.Load(context.Background(), backend.New(db, log), f, log)
	if err != nil {
		log.Error("seed failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("seeded: %+v\n", report)
}

func readSeed(path string) (seed.File, error) {
	if path == "" {
		return seed.Default()
	}
	fh, err := os.Open(path)
	if err != nil {
		return seed.File{}, err
	}
	defer fh.Close()
	return seed.Parse(fh)
}
