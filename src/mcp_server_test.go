package main

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func Test_startMCP_badListenAddress(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	// an address that can never bind has to return with a logged error
	// instead of exiting silently
	startMCP("127.0.0.1:-1", "", "")
	if !strings.Contains(buf.String(), "Server failed") {
		t.Errorf("no failure logged for a bad listen address: %q", buf.String())
	}
}
