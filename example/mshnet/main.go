package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mshnet/config"
	"github.com/sugarme/mshnet/mshnet"
)

// flag variables
var (
	ConfigPath  string
	ModelPath   string
	SavePath    string
	Cuda        bool
	PartialConv bool
	InChannels  int64
	BatchSize   int64
	ImageSize   int64
	Verbose     bool
)

func init() {
	flag.StringVar(&ConfigPath, "config", "", "specify model config file (yaml, json, toml).")
	flag.StringVar(&ModelPath, "model", "", "specify full path to model weight file to load.")
	flag.StringVar(&SavePath, "save", "", "specify path to save model weights.")
	flag.BoolVar(&Cuda, "cuda", false, "specify whether using CUDA or not.")
	flag.BoolVar(&PartialConv, "pconv", false, "use partial convolution in the first encoder stage.")
	flag.Int64Var(&InChannels, "channels", 3, "specify input image channels.")
	flag.Int64Var(&BatchSize, "batch", 1, "specify batch size")
	flag.Int64Var(&ImageSize, "size", 256, "specify image size. Must be divisible by 16.")
	flag.BoolVar(&Verbose, "v", false, "print model variables.")
}

func loadConfig() config.Config {
	if ConfigPath == "" {
		cfg := config.Default()
		cfg.InputChannels = InChannels
		cfg.PartialConv = PartialConv
		return cfg
	}

	cfg, err := config.Load(absPath(ConfigPath))
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func checkModel(device gotch.Device) {
	if ImageSize%16 != 0 {
		log.Fatalf("Image size must be divisible by 16. Got %v\n", ImageSize)
	}

	cfg := loadConfig()
	vs := nn.NewVarStore(device)
	net, err := mshnet.NewMSHNet(vs.Root(), cfg)
	if err != nil {
		log.Fatal(err)
	}

	if ModelPath != "" {
		err = vs.Load(absPath(ModelPath))
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Weights loaded from %v\n", ModelPath)
	}

	if Verbose {
		printVars(vs)
	}
	log.Printf("Parameters: %v\n", numParams(vs))

	image := ts.MustRand([]int64{BatchSize, cfg.InputChannels, ImageSize, ImageSize}, gotch.Float, device)
	ts.NoGrad(func() {
		masks, output := net.Forward(image, false, false)
		log.Printf("inference\t masks: %v\t output: %v\n", len(masks), output.MustSize())
		output.MustDrop()

		masks, output = net.Forward(image, true, false)
		for i, m := range masks {
			log.Printf("warm\t mask %v: %v\n", i, m.MustSize())
			m.MustDrop()
		}
		log.Printf("warm\t output: %v\n", output.MustSize())
		output.MustDrop()
	})
	image.MustDrop()

	if SavePath != "" {
		err = vs.Save(absPath(SavePath))
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Weights saved to %v\n", SavePath)
	}
}

// printVars print variables sorted by name
func printVars(vs *nn.VarStore) {
	vars := vs.Variables()
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		v := vars[n]
		fmt.Printf("%v \t\t %v\n", n, v.MustSize())
	}
}

func numParams(vs *nn.VarStore) int64 {
	var n int64
	for _, v := range vs.TrainableVariables() {
		size := int64(1)
		for _, d := range v.MustSize() {
			size *= d
		}
		n += size
	}
	return n
}

// helper to get absolute file path
func absPath(p string) string {
	fullpath, err := filepath.Abs(p)
	if err != nil {
		log.Fatal(err)
	}
	return fullpath
}

func main() {
	flag.Parse()

	device := gotch.CPU
	if Cuda {
		device = gotch.NewCuda().CudaIfAvailable()
	}

	checkModel(device)
}
