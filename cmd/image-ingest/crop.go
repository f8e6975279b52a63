package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	imageingest "github.com/menta2k/image-ingest"
	"github.com/menta2k/image-ingest/internal/utils"
	"github.com/menta2k/image-ingest/pkg/modal"
	"github.com/menta2k/image-ingest/pkg/presets"
	"github.com/menta2k/image-ingest/pkg/types"
)

type cropOptions struct {
	in          string
	preset      string
	aspect      string
	rotate      int
	zoom        float64
	panX        float64
	panY        float64
	requireCrop bool
	autoFrame   bool
	debug       bool
}

func (a *app) newCropCmd() *cobra.Command {
	opts := &cropOptions{}

	cmd := &cobra.Command{
		Use:   "crop",
		Short: "Crop an image and compress it to WebP",
		Long: `Crop an image with an aspect preset and compress the result.

The crop starts centered at zoom 1. Rotation is applied in quarter turns,
then zoom, optional auto-framing on the detected subject and finally the
pan offset in rotated image pixels.

Examples:
  # Hero image in 16:9
  image-ingest crop --in photo.jpg --aspect 16:9 --preset projectHero

  # Square avatar framed on the subject
  image-ingest crop --in https://example.com/me.png --preset avatar --require-crop --auto-frame

  # Rotate once and write a debug overlay next to the output
  image-ingest crop --in scan.jpg --rotate 90 --zoom 1.4 --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCrop(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.in, "in", "i", "", "input image path or URL")
	f.StringVarP(&opts.preset, "preset", "p", string(presets.Default), "compression preset")
	f.StringVarP(&opts.aspect, "aspect", "a", "", "aspect preset name or W:H (default from config)")
	f.IntVar(&opts.rotate, "rotate", 0, "clockwise rotation in degrees, a multiple of 90")
	f.Float64Var(&opts.zoom, "zoom", 0, "zoom factor within the configured bounds")
	f.Float64Var(&opts.panX, "pan-x", 0, "horizontal pan in rotated image pixels")
	f.Float64Var(&opts.panY, "pan-y", 0, "vertical pan in rotated image pixels")
	f.BoolVar(&opts.requireCrop, "require-crop", false, "force a square crop")
	f.BoolVar(&opts.autoFrame, "auto-frame", false, "center the crop on the detected subject")
	f.BoolVar(&opts.debug, "debug", false, "write a PNG overlay of the crop rect")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func (a *app) runCrop(cmd *cobra.Command, opts *cropOptions) error {
	if opts.rotate%90 != 0 {
		return fmt.Errorf("rotation %d is not a multiple of 90", opts.rotate)
	}

	ctx := cmd.Context()
	rt, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	src, err := rt.ingester.Load(ctx, opts.in)
	if err != nil {
		return err
	}

	asset, session, err := rt.ingester.Crop(ctx, src, imageingest.CropRequest{
		Aspect:       opts.aspect,
		Preset:       presets.Name(opts.preset),
		RequireCrop:  opts.requireCrop,
		QuarterTurns: opts.rotate / 90,
		Zoom:         opts.zoom,
		Pan:          types.Point{X: opts.panX, Y: opts.panY},
		AutoFrame:    opts.autoFrame,
	})
	if err != nil {
		return err
	}

	if opts.debug {
		if err := a.writeOverlay(rt, src, session); err != nil {
			rt.logger.Warn("debug overlay failed", zap.Error(err))
		}
	}

	return a.store(ctx, rt, src, asset)
}

func (a *app) writeOverlay(rt *pipeline, src types.SourceImage, session modal.Session) error {
	overlay, err := rt.ingester.DebugOverlay(src, session)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(rt.cfg.Storage.Dir); err != nil {
		return err
	}

	name := utils.ReplaceExtension(utils.SanitizeFilename(filepath.Base(src.Name)), "png")
	path := filepath.Join(rt.cfg.Storage.Dir, "debug_"+name)
	if err := rt.ingester.SaveImage(overlay, path, "png", 0); err != nil {
		return err
	}
	fmt.Fprintf(a.stderr, "debug overlay: %s\n", path)
	return nil
}
