package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/jrsteele09/go-sso-client/transport/oidcclient"
	"github.com/pkg/errors"
)

// openBrowser launches the platform browser on rawURL without waiting for it to exit.
func openBrowser(ctx context.Context, rawURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", rawURL)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", rawURL)
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "openBrowser Start")
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// printURL asks the user to open the URL themselves.
func printURL(w io.Writer) oidcclient.Opener {
	return func(_ context.Context, rawURL string) error {
		_, err := fmt.Fprintf(w, "Open this URL in a browser:\n\n  %s\n\n", rawURL)
		return err
	}
}
