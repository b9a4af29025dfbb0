// Command trenchcoat flashes signed MicroPython firmware onto Warped
// Pinball controller boards over USB.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/schollz/progressbar/v3"

	"github.com/warped-pinball/trenchcoat/catalog"
	"github.com/warped-pinball/trenchcoat/config"
	"github.com/warped-pinball/trenchcoat/discovery"
	"github.com/warped-pinball/trenchcoat/flash"
	"github.com/warped-pinball/trenchcoat/protocol"
)

var (
	listFlag     = flag.Bool("list", false, "list available firmware versions and exit")
	devicesFlag  = flag.Bool("devices", false, "list attached devices and exit")
	resetFlag    = flag.Bool("reset", false, "soft-reset the attached board and exit")
	portFlag     = flag.String("port", "", "serial port of the target device")
	versionFlag  = flag.String("fw-version", "", "firmware version to flash (default: newest)")
	boardFlag    = flag.String("board", "", "target board identifier")
	firmwareFlag = flag.String("firmware", "", "local .uf2 file to flash (requires an adjacent .sig)")
	configFlag   = flag.String("config", "trenchcoat.yaml", "configuration file")
	firstFlag    = flag.Bool("first", false, "flash the first device when several match")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if *boardFlag != "" {
		cfg.Board = *boardFlag
	}
	if cfg.Board == "" {
		cfg.Board = flash.DefaultBoard
	}
	if *firstFlag {
		cfg.PickFirst = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := glogLogger{}

	var source flash.ArtifactSource
	if *firmwareFlag != "" {
		source = &fileSource{path: *firmwareFlag, board: cfg.Board}
	} else {
		source = catalog.New(append(cfg.CatalogOptions(), catalog.WithLogger(logger))...)
	}

	if *listFlag {
		return list(ctx, source, cfg.Board)
	}

	scanner := discovery.NewScanner(discovery.WithLogger(logger))

	if *devicesFlag {
		return listDevices(ctx, scanner)
	}
	if *resetFlag {
		return reset(ctx, scanner, *portFlag)
	}
	orch := flash.New(scanner, source,
		append(cfg.FlashOptions(), flash.WithLogger(logger))...)

	var selectDevice flash.DeviceSelector
	if *portFlag != "" {
		selectDevice = flash.SelectPort(*portFlag)
	}
	var selectFirmware flash.FirmwareSelector
	if *versionFlag != "" {
		selectFirmware = flash.SelectVersion(*versionFlag)
	}

	var bar *progressbar.ProgressBar
	for ev := range orch.Flash(ctx, selectDevice, selectFirmware) {
		switch ev.State {
		case flash.StateTransferring:
			if bar == nil {
				bar = progressbar.NewOptions(ev.TotalBytes,
					progressbar.OptionSetDescription("transferring"),
					progressbar.OptionShowBytes(true),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set(ev.BytesWritten)

		case flash.StateFlashed:
			if bar != nil {
				_ = bar.Finish()
			}
			fmt.Println(ev.Message)
			return 0

		case flash.StateFailed:
			if bar != nil {
				_ = bar.Exit()
				fmt.Println()
			}
			fmt.Fprintln(os.Stderr, "error:", ev.Err)
			if ev.Message != "" {
				fmt.Fprintln(os.Stderr, ev.Message)
			}
			var amb *discovery.AmbiguousDeviceError
			if errors.As(ev.Err, &amb) {
				fmt.Fprintln(os.Stderr, "matching devices:")
				for _, d := range amb.Candidates {
					fmt.Fprintln(os.Stderr, "  ", d)
				}
				fmt.Fprintln(os.Stderr, "re-run with -port or -first")
			}
			return 1

		default:
			if ev.Message != "" {
				fmt.Printf("[%s] %s\n", ev.State, ev.Message)
			}
		}
	}
	return 1
}

func listDevices(ctx context.Context, scanner *discovery.Scanner) int {
	devices, err := scanner.ListCandidates(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Println("no devices found")
		return 0
	}
	for _, d := range devices {
		fmt.Println(d)
	}
	return 0
}

// reset soft-reboots an application-mode board over its REPL.
func reset(ctx context.Context, scanner *discovery.Scanner, port string) int {
	devices, err := scanner.ListCandidates(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	var target *discovery.Device
	for i := range devices {
		if devices[i].Mode != discovery.ModeApplication {
			continue
		}
		if port != "" && devices[i].Port != port {
			continue
		}
		target = &devices[i]
		break
	}
	if target == nil {
		fmt.Fprintln(os.Stderr, "error:", discovery.ErrDeviceNotFound)
		return 1
	}

	rw, err := scanner.OpenPort(*target)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer func() { _ = rw.Close() }()

	sh := protocol.NewShell(rw)
	if err := sh.EnterRawREPL(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if err := sh.ExecNoWait(protocol.ScriptSoftReset); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	fmt.Println("reset", target.Port)
	return 0
}

func list(ctx context.Context, source flash.ArtifactSource, board string) int {
	available, err := source.ListVersions(ctx, board)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if len(available) == 0 {
		fmt.Println("no firmware versions available for board", board)
		return 0
	}
	for _, info := range available {
		line := fmt.Sprintf("%-12s %s", info.Version, info.Source)
		if info.Size > 0 {
			line += fmt.Sprintf("  %d bytes", info.Size)
		}
		if !info.PublishedAt.IsZero() {
			line += "  " + info.PublishedAt.Format("2006-01-02")
		}
		fmt.Println(line)
	}
	return 0
}

// fileSource serves a single local .uf2 with its adjacent detached
// signature. Signature verification still runs on the result; a file
// without a .sig cannot be flashed.
type fileSource struct {
	path  string
	board string
}

func (f *fileSource) ListVersions(ctx context.Context, board string) ([]catalog.ArtifactInfo, error) {
	fi, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrArtifactUnavailable, err)
	}
	return []catalog.ArtifactInfo{{
		Version: strings.TrimSuffix(filepath.Base(f.path), ".uf2"),
		Board:   board,
		Size:    fi.Size(),
		Source:  catalog.SourceBundled,
	}}, nil
}

func (f *fileSource) Fetch(ctx context.Context, info catalog.ArtifactInfo) (*catalog.Artifact, error) {
	payload, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrArtifactUnavailable, err)
	}
	sig, err := os.ReadFile(f.path + ".sig")
	if err != nil {
		return nil, fmt.Errorf("%w: missing signature: %v", catalog.ErrArtifactUnavailable, err)
	}
	return &catalog.Artifact{ArtifactInfo: info, Payload: payload, Signature: sig}, nil
}

// glogLogger adapts glog to the library logger interfaces.
type glogLogger struct{}

func (glogLogger) Debug(msg string, keysAndValues ...interface{}) {
	if glog.V(1) {
		glog.Info(msg, formatKV(keysAndValues))
	}
}

func (glogLogger) Info(msg string, keysAndValues ...interface{}) {
	glog.Info(msg, formatKV(keysAndValues))
}

func (glogLogger) Error(msg string, keysAndValues ...interface{}) {
	glog.Error(msg, formatKV(keysAndValues))
}

func formatKV(kv []interface{}) string {
	if len(kv) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
