package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/valerio/dotmatrix/dotmatrix"
	"github.com/valerio/dotmatrix/dotmatrix/terminal"
)

func main() {
	app := cli.NewApp()
	app.Name = "dotmatrix"
	app.Description = "A cycle-accurate DMG/CGB emulator"
	app.Usage = "dotmatrix [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.StringFlag{
			Name:  "bootrom",
			Usage: "Path to an optional boot ROM image",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the emulator without a display",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (required for headless)",
			Value: 0,
		},
		cli.BoolFlag{
			Name:  "serial",
			Usage: "Echo link-port output to stdout (test ROMs report through it)",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
	}
	app.Action = runEmulator

	err := app.Run(os.Args)
	if err != nil {
		slog.Error("Error running emulator", "error", err)
		os.Exit(1)
	}
}

func runEmulator(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	machine := dotmatrix.New()

	if bootPath := c.String("bootrom"); bootPath != "" {
		boot, err := os.ReadFile(bootPath)
		if err != nil {
			return fmt.Errorf("reading boot ROM: %w", err)
		}
		machine.SetBootROM(boot)
	}

	data, err := os.ReadFile(romPath)
	if err != nil {
		return err
	}
	if err := machine.LoadROM(data); err != nil {
		return fmt.Errorf("loading %s: %w", romPath, err)
	}

	slog.Info("Loaded ROM",
		"title", machine.ROMTitle(),
		"battery", machine.SupportsSaving(),
		"cgb", machine.CGB())

	if c.Bool("serial") {
		machine.SetSerialFunc(func(b byte) {
			fmt.Printf("%c", b)
		})
	}

	if c.Bool("headless") {
		frames := c.Int("frames")
		if frames <= 0 {
			return errors.New("headless mode requires --frames option with a positive value")
		}

		slog.Info("Running headless mode", "frames", frames)
		for i := 0; i < frames; i++ {
			machine.RunFrame()
			if (i+1)%600 == 0 {
				slog.Info("Frame progress", "completed", i+1, "total", frames)
			}
		}
		slog.Info("Headless execution completed", "frames", frames)
		return nil
	}

	viewer, err := terminal.NewViewer(machine)
	if err != nil {
		return err
	}
	return viewer.Run()
}
