// Command netbpfload discovers eBPF object files under a set of well-known
// directories, loads their maps and programs into the kernel, and pins the
// resulting file descriptors in a BPF filesystem.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/aosp-mirror/netbpfload/internal/loader"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if len(args) == 1 && args[0] == "done" {
		// Re-exec'ed from the platform bpfloader to finalize things; setting
		// the downstream system property is out of scope here.
		return 0
	}

	fs := flag.NewFlagSet("netbpfload", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "probe the environment and report the locations found, without loading anything")
	handoffPath := fs.String("handoff", "/system/bin/bpfloader", "platform bpfloader binary to exec after a successful load")
	noMountsProbe := fs.Bool("no-mounts-probe", false, "skip the /proc/mounts tethering-apex version probe")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	const bpfRoot = "/apex/com.android.tethering/etc/bpf"
	locations := []loader.Location{
		// S+ tethering mainline module (network_stack): tether offload.
		{Dir: bpfRoot, Prefix: "tethering/"},
		// T+ tethering mainline module, shared with netd & system server;
		// netutils_wrapper (for iptables xt_bpf) has access to programs.
		{Dir: bpfRoot + "/netd_shared", Prefix: "netd_shared/"},
		// T+ tethering mainline module, shared with netd & system server;
		// netutils_wrapper has no access, netd has read-only access.
		{Dir: bpfRoot + "/netd_readonly", Prefix: "netd_readonly/"},
		// T+ tethering mainline module, shared with system server.
		{Dir: bpfRoot + "/net_shared", Prefix: "net_shared/"},
		// T+ tethering mainline module, not shared, just network_stack.
		{Dir: bpfRoot + "/net_private", Prefix: "net_private/"},
	}

	orchestrator, err := loader.New(existingLocations(locations), logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	orchestrator.SkipMountsProbe = *noMountsProbe

	if *dryRun {
		logger.Info("dry run: environment probed successfully, not loading anything", "locations", len(orchestrator.Locations))
		return 0
	}

	code := orchestrator.Run()
	if code != 0 {
		return code
	}

	if err := orchestrator.Handoff(*handoffPath); err != nil {
		logger.Debug("not handing off to platform bpfloader", "error", err)
	}

	return 0
}

// existingLocations drops Locations whose directory doesn't exist: not
// every build ships every one of the well-known BPF object directories.
func existingLocations(locations []loader.Location) []loader.Location {
	var out []loader.Location
	for _, loc := range locations {
		if info, err := os.Stat(loc.Dir); err == nil && info.IsDir() {
			out = append(out, loc)
		}
	}
	return out
}
