//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §8's end-to-end acceptance scenarios ("fetch a URL,
// follow redirects, unzip, print body"). The teacher repo carries no CLI
// layer of its own (see DESIGN.md); this command uses only the standard
// library's flag package, the one ambient concern this module does not
// borrow a third-party dependency for.
//

// Command aicp-fetch is a minimal command-line client exercising
// [github.com/aicp-go/aicp/httpclient] end to end: it drives the full
// connect/request/response/redirect/read pipeline over a single
// [github.com/aicp-go/aicp/aicp.Proactor] and prints the response body to
// stdout.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aicp-go/aicp/aicp"
	"github.com/aicp-go/aicp/httpclient"
)

func main() {
	var (
		verbose  = flag.Bool("v", false, "log aicp/httpclient events to stderr")
		unzip    = flag.Bool("unzip", true, "transparently inflate gzip/deflate bodies")
		redirect = flag.Int("redirect", 5, "maximum redirects to follow")
		timeout  = flag.Duration("timeout", 30*time.Second, "per-request timeout")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: aicp-fetch [flags] <url>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if !*verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}

	pcfg := aicp.NewConfig()
	pcfg.Logger = logger
	p := aicp.New(pcfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer p.Exit(context.Background())

	ccfg := httpclient.NewConfig()
	ccfg.Logger = logger
	client := httpclient.New(p, ccfg)

	opt := httpclient.NewOptions()
	if _, err := opt.WithURL(flag.Arg(0)); err != nil {
		fatalf("invalid url: %v", err)
	}
	opt.WithUnzip(*unzip).WithRedirect(*redirect).WithTimeout(int64(timeout.Milliseconds()))
	client.Ctrl(opt)

	if err := fetch(client); err != nil {
		fatalf("%v", err)
	}
}

func fetch(client *httpclient.Client) error {
	type openResult struct {
		status *httpclient.Status
	}
	opened := make(chan openResult, 1)
	client.Open(func(st *httpclient.Status, payload []byte, priv any) bool {
		opened <- openResult{st}
		return true
	}, nil)
	or := <-opened
	if or.status.State != httpclient.StateOK && or.status.State != httpclient.StateNoContent {
		return fmt.Errorf("server returned %s (HTTP %d)", or.status.State, or.status.Code)
	}

	var body bytes.Buffer
	done := make(chan error, 1)
	var read func()
	read = func() {
		client.Read(64*1024, func(st *httpclient.Status, payload []byte, priv any) bool {
			if len(payload) > 0 {
				body.Write(payload)
				go read()
				return true
			}
			done <- nil
			return true
		}, nil)
	}
	go read()
	if err := <-done; err != nil {
		return err
	}
	os.Stdout.Write(body.Bytes())
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "aicp-fetch: "+format+"\n", args...)
	os.Exit(1)
}
