package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/evanphx/penguin/fs"
	"github.com/evanphx/penguin/fs/devfs"
	"github.com/evanphx/penguin/fs/host"
	"github.com/evanphx/penguin/fs/tarfs"
	"github.com/evanphx/penguin/kernel"
	"github.com/evanphx/penguin/log"
	"github.com/evanphx/penguin/memory"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

var (
	fInitramfs   = pflag.StringP("initramfs", "i", "", "tar archive to use as the root filesystem")
	fRoot        = pflag.StringP("root", "r", "", "host directory to use read-only as the root filesystem")
	fInit        = pflag.String("init", kernel.DefaultInitPath, "path of the init executable")
	fRAM         = pflag.StringArray("ram", []string{"0x100000:0x4000000"}, "RAM area as base:len, repeatable")
	fMaxSymlinks = pflag.Int("max-symlinks", fs.DefaultMaxSymlinks, "symlinks followed by one path lookup")
	fDebug       = pflag.Bool("debug", false, "enable debug logging")
)

func parseRAM(specs []string) ([]kernel.RAMArea, error) {
	var areas []kernel.RAMArea

	for _, spec := range specs {
		base, length, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, errors.Errorf("bad ram area %q, want base:len", spec)
		}

		b, err := strconv.ParseUint(base, 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "ram area %q", spec)
		}

		l, err := strconv.ParseUint(length, 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "ram area %q", spec)
		}

		areas = append(areas, kernel.RAMArea{Base: memory.PAddr(b), Len: l})
	}

	return areas, nil
}

func rootFilesystem() (fs.Filesystem, error) {
	switch {
	case *fInitramfs != "" && *fRoot != "":
		return nil, errors.New("--initramfs and --root are exclusive")
	case *fRoot != "":
		return host.NewHostFS(*fRoot)
	case *fInitramfs != "":
		f, err := os.Open(*fInitramfs)
		if err != nil {
			return nil, err
		}

		defer f.Close()

		return tarfs.NewTarFS(f)
	default:
		return nil, errors.New("one of --initramfs or --root is required")
	}
}

func run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(*kernel.FatalError)
			if !ok {
				panic(r)
			}

			err = fe
		}
	}()

	root, err := rootFilesystem()
	if err != nil {
		return err
	}

	areas, err := parseRAM(*fRAM)
	if err != nil {
		return err
	}

	kernel.Boot(ctx, kernel.BootInfo{RAMAreas: areas}, kernel.Config{
		InitPath:  *fInit,
		InitArgs:  append([]string{*fInit}, pflag.Args()...),
		Console:   devfs.Stdio{In: os.Stdin, Out: os.Stdout},
		Initramfs: root,
		FS:        fs.Options{MaxSymlinks: *fMaxSymlinks},
	})

	return nil
}

func main() {
	cpuprofile := os.Getenv("CPUPROFILE")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not create CPU profile: %s\n", err)
			os.Exit(1)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "could not start CPU profile: %s\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	pflag.Parse()

	if *fDebug {
		log.EnableDebug()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		log.L.Error("penguin stopped", "error", err)
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}
