package main

import "github.com/PierreExeter/stackup/cmd"

// Overridden at release time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd.Execute(version, commit)
}
