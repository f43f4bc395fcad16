package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

func handleRoute(ctx context.Context, args []string) error {
	fs, cfgPath, logLevel, jsonOut := commonFlags("route")
	url := fs.String("url", "", "URL to classify and probe")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *url == "" {
		return errors.New("--url required")
	}
	core, _, err := newCoreFromFlags(*cfgPath, *logLevel, *jsonOut)
	if err != nil {
		return err
	}
	defer core.Close()

	decision := core.RouteURL(ctx, *url)
	fmt.Printf("engine:       %s\n", decision.Badge)
	fmt.Printf("connections:  %d\n", decision.RecommendedConnections)
	fmt.Printf("force_http1:  %v\n", decision.ForceHTTP1)
	if decision.FileSize != nil {
		fmt.Printf("size:         %s\n", humanize.Bytes(uint64(*decision.FileSize)))
	}
	fmt.Printf("reason:       %s\n", decision.Reason)
	return nil
}
