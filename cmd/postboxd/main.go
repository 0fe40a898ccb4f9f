package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"postbox/internal/config"
	"postbox/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("POSTBOX_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
