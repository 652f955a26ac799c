package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"brainextract/internal/models"
	"brainextract/pkg/config"
	"brainextract/pkg/extraction"
	"brainextract/pkg/stl"
	"brainextract/pkg/visualization"
	"brainextract/pkg/volumeio"
)

var log = config.NamedLogger("main")

func main() {
	// Parse command line arguments
	inputFile := flag.String("input", "", "Input volume as a 3D .npy array")
	configFile := flag.String("config", "brainextract.yaml", "YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	maskFile := flag.String("mask", "", "Output mask .npy file")
	snapshotFile := flag.String("snapshot", "", "Output zstd mask snapshot")
	volumeFile := flag.String("volume", "", "Output masked volume .npy file")
	meshFile := flag.String("mesh", "", "Output surface STL file")
	slicesDir := flag.String("slices-dir", "", "Directory to save mask overlay slices")
	intermediaryDir := flag.String("intermediary-dir", "", "Directory to save a mask snapshot of every stage")
	iterations := flag.Int("iterations", 0, "Number of second phase evolution steps")
	subdivision := flag.Int("subdivision", 0, "Number of octahedron subdivisions")
	dilation := flag.Int("dilation", 0, "Surface dilation radius in voxels")
	justEllipse := flag.Bool("just-ellipse", false, "Stop after the initial ellipsoid")
	useSphere := flag.Bool("use-sphere", false, "Use a sphere instead of the fitted ellipsoid")
	erosion := flag.Bool("erosion", false, "Erode bright rims and fit the surface again")
	extractToMask := flag.Bool("extract-to-mask", false, "Leave the volume untouched and only produce a mask")
	logLevel := flag.String("log-level", "", "Logging level (panic, fatal, error, warn, info, debug)")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configFile); err != nil {
			log.Fatalf("Failed to write default configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configFile)
		return
	}

	// Validate inputs
	if *inputFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Explicitly set flags override the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mask":
			cfg.Output.MaskFile = *maskFile
		case "snapshot":
			cfg.Output.SnapshotFile = *snapshotFile
		case "volume":
			cfg.Output.VolumeFile = *volumeFile
		case "mesh":
			cfg.Output.MeshFile = *meshFile
		case "slices-dir":
			cfg.Output.SlicesDir = *slicesDir
		case "intermediary-dir":
			cfg.Output.IntermediaryDir = *intermediaryDir
		case "iterations":
			cfg.Extraction.Iterations = *iterations
		case "subdivision":
			cfg.Extraction.Subdivision = *subdivision
		case "dilation":
			cfg.Extraction.Dilation = *dilation
		case "just-ellipse":
			cfg.Extraction.JustEllipse = *justEllipse
		case "use-sphere":
			cfg.Extraction.UseSphere = *useSphere
		case "erosion":
			cfg.Extraction.SecondStageErosion = *erosion
		case "extract-to-mask":
			cfg.Extraction.ExtractToMask = *extractToMask
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	params, err := extraction.ParamsFromConfig(cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := config.SetLevel(cfg.Logging.Level); err != nil {
		log.Fatalf("Invalid logging level: %v", err)
	}

	v, err := loadVolume(*inputFile, cfg)
	if err != nil {
		log.Fatalf("Failed to load volume: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("BRAIN EXTRACTION BY DEFORMABLE SURFACE EVOLUTION")
	fmt.Println("================================")
	fmt.Printf("Volume: %dx%dx%d voxels, %.2fx%.2fx%.2f mm, %s\n",
		v.Width, v.Height, v.Depth, v.Resolution[0], v.Resolution[1], v.Resolution[2], v.Orientation)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor := extraction.NewExtractor(params)
	startTime := time.Now()
	res, err := extractor.Process(ctx, v)
	if err != nil {
		log.Fatalf("Extraction failed: %v", err)
	}
	processingTime := time.Since(startTime)

	fmt.Printf("\nExtraction completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Brain volume: %d voxels, %.1f cm³\n", res.VoxelCount, res.Volume/1000)
	if res.Eroded {
		fmt.Printf("Second stage erosion removed %d voxels\n", res.ErosionStats.Eroded+res.ErosionStats.Cleaned)
	}

	if err := saveOutputs(cfg, v, res); err != nil {
		log.Fatalf("Failed to save results: %v", err)
	}
}

// loadVolume reads the input array and applies the volume section of cfg
func loadVolume(path string, cfg *config.Config) (*models.Volume, error) {
	v, err := volumeio.ReadNpy(path)
	if err != nil {
		return nil, err
	}
	copy(v.Resolution[:], cfg.Volume.Resolution)
	copy(v.Origin[:], cfg.Volume.Origin)
	if v.Orientation, err = models.ParseOrientation(cfg.Volume.Orientation); err != nil {
		return nil, err
	}
	return v, nil
}

// outputMask returns the binary selection in extract-to-mask mode and the
// surface/interior mask otherwise
func outputMask(res *extraction.Result) *models.Mask {
	if res.Selection == nil {
		return res.Mask
	}
	return &models.Mask{
		Data:   res.Selection,
		Width:  res.Mask.Width,
		Height: res.Mask.Height,
		Depth:  res.Mask.Depth,
	}
}

// saveOutputs writes every output named in the output section
func saveOutputs(cfg *config.Config, v *models.Volume, res *extraction.Result) error {
	out := cfg.Output
	if out.MaskFile != "" {
		if err := volumeio.WriteMaskNpy(out.MaskFile, outputMask(res)); err != nil {
			return err
		}
		fmt.Printf("Mask saved to: %s\n", out.MaskFile)
	}
	if out.SnapshotFile != "" {
		if err := volumeio.WriteMaskSnapshot(out.SnapshotFile, res.Mask, volumeio.NewSnapshotHeader(res.Mask, v)); err != nil {
			return err
		}
		fmt.Printf("Mask snapshot saved to: %s\n", out.SnapshotFile)
	}
	if out.VolumeFile != "" {
		if cfg.Extraction.ExtractToMask {
			log.Warn("extract-to-mask leaves the volume untouched, writing it unmasked")
		}
		if err := volumeio.WriteVolumeNpy(out.VolumeFile, v); err != nil {
			return err
		}
		fmt.Printf("Volume saved to: %s\n", out.VolumeFile)
	}
	if out.MeshFile != "" {
		if err := os.MkdirAll(filepath.Dir(out.MeshFile), 0755); err != nil {
			return err
		}
		if err := stl.SaveToSTL(out.MeshFile, res.MeshTriangles(v)); err != nil {
			return err
		}
		fmt.Printf("Surface saved to: %s\n", out.MeshFile)
	}
	if out.SlicesDir != "" {
		viewer, err := visualization.NewViewer(v, res.Mask)
		if err != nil {
			return err
		}
		files, err := viewer.SaveMidSlices(out.SlicesDir)
		if err != nil {
			log.Warnf("Failed to save slices: %v", err)
		}
		for _, f := range files {
			fmt.Printf("Slice saved to: %s\n", f)
		}
	}
	if out.IntermediaryDir != "" {
		fmt.Printf("\nIntermediary results saved to: %s\n", out.IntermediaryDir)
	}
	return nil
}
