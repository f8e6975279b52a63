package main

import (
	"github.com/spf13/cobra"

	"github.com/menta2k/image-ingest/pkg/presets"
)

type compressOptions struct {
	in     string
	preset string
}

func (a *app) newCompressCmd() *cobra.Command {
	opts := &compressOptions{}

	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Compress an image without cropping",
		Long: `Compress the original image with a preset, skipping the crop.

Images that cannot be decoded, or whose encoding fails, are stored with
their original bytes.

Examples:
  image-ingest compress --in photo.jpg --preset product`,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			asset, err := rt.ingester.Compress(ctx, src, presets.Name(opts.preset))
			if err != nil {
				return err
			}
			return a.store(ctx, rt, src, asset)
		},
	}

	cmd.Flags().StringVarP(&opts.in, "in", "i", "", "input image path or URL")
	cmd.Flags().StringVarP(&opts.preset, "preset", "p", string(presets.Default), "compression preset")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}
