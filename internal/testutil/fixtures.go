package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteConfig writes a CSV configuration file into dir and returns its
// path. Lines are joined with newlines.
func WriteConfig(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config %s: %v", path, err)
	}
	return path
}

// LivingRoom is a small configuration: one machine with two relay
// channels on module 0x0A group 0x01, switched on by a button press
// (event set 1) and off by a release (event set 2).
var LivingRoom = []string{
	"State Machines and Loads,0,Relay,0A,01,1",
	"State Machines and Loads,0,Relay,0A,01,2",
	"State Machines and Events,0,1",
	"State Machines and Events,0,2",
	"Event Sets,1,e,e,e,e,x,x,e,e,x,x,x,x,30,10,20,01,0,0,01,FF,0,0,0,0",
	"Event Sets,2,e,e,e,e,x,x,e,e,x,x,x,x,30,10,20,01,0,0,01,00,0,0,0,0",
	"Action Sets,1,10,A0,F0,F0,01,03,0A,01,00,FF,FF,FF",
	"States and Actions,0,0,1,1",
	"State Transitions,0,0,1,1",
	"State Transitions,0,1,2,0",
}
