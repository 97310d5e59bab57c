// Package main provides the onnx2ir command line tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/weldml/onnx2ir/internal/config"
	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
	"github.com/weldml/onnx2ir/parser"
)

var (
	verbosity int
	strict    bool
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:     "onnx2ir",
		Short:   "onnx2ir translates ONNX models into a target network IR",
		Version: fmt.Sprintf("%d.%d.%d", parser.VersionMajor, parser.VersionMinor, parser.VersionPatch),
	}
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", cfg.Verbosity, "log verbosity (0-2)")

	inspectCmd := &cobra.Command{
		Use:   "inspect <model>",
		Short: "Print a summary of a model without translating it",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	checkCmd := &cobra.Command{
		Use:   "check <model>",
		Short: "Report which parts of a model are translatable",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	checkCmd.Flags().BoolVar(&strict, "strict", cfg.Strict, "exit nonzero when any node is untranslatable")

	convertCmd := &cobra.Command{
		Use:   "convert <model>",
		Short: "Translate a model and print the resulting network",
		Args:  cobra.ExactArgs(1),
		RunE:  runConvert,
	}

	rootCmd.AddCommand(inspectCmd, checkCmd, convertCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	level := zapcore.ErrorLevel
	switch {
	case verbosity >= 2:
		level = zapcore.DebugLevel
	case verbosity == 1:
		level = zapcore.InfoLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func readModel(path string) (*onnx.ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if onnx.IsTextModel(data) {
		return onnx.UnmarshalText(data)
	}
	return onnx.Unmarshal(data)
}

func runInspect(cmd *cobra.Command, args []string) error {
	model, err := readModel(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	info := onnx.Info(model)

	fmt.Printf("IR version:   %d\n", info.IRVersion)
	fmt.Printf("Opset:        %d\n", info.OpsetVersion)
	if info.ProducerName != "" {
		fmt.Printf("Producer:     %s %s\n", info.ProducerName, info.ProducerVersion)
	}
	fmt.Printf("Nodes:        %d\n", info.NodeCount)
	fmt.Printf("Weights:      %d\n", info.WeightCount)
	fmt.Printf("Inputs:       %v\n", info.InputNames)
	fmt.Printf("Outputs:      %v\n", info.OutputNames)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	logger := newLogger()
	defer logger.Sync()

	network := ir.NewNetwork()
	p, err := parser.New(network, logger)
	if err != nil {
		return err
	}

	supported, coll := p.SupportsModel(data, args[0])
	printErrors(p)

	for _, sg := range coll {
		verdict := "unsupported"
		if sg.Supported {
			verdict = "supported"
		}
		fmt.Printf("%s: %d node(s) %v\n", verdict, len(sg.NodeIndices), sg.NodeIndices)
	}
	if supported {
		fmt.Println("model is fully translatable")
		return nil
	}
	if strict {
		return fmt.Errorf("model contains untranslatable nodes")
	}
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	network := ir.NewNetwork()
	p, err := parser.New(network, logger)
	if err != nil {
		return err
	}

	if !p.ParseFromFile(args[0], verbosity) {
		printErrors(p)
		return fmt.Errorf("translation failed with %d error(s)", p.NumErrors())
	}

	fmt.Printf("translated %d layer(s)\n", len(network.Layers()))
	for _, layer := range network.Layers() {
		fmt.Printf("  %-24s %s\n", layer.Kind, layer.Name)
	}
	if refit := p.RefitMap(); len(refit) > 0 {
		fmt.Printf("refittable weights: %d\n", len(refit))
		for _, entry := range refit {
			fmt.Printf("  %-32s -> %s (%s)\n", entry.WeightName, entry.LayerName, entry.Role)
		}
	}
	return nil
}

func printErrors(p *parser.Parser) {
	for i := 0; i < p.NumErrors(); i++ {
		if e, ok := p.Error(i); ok {
			fmt.Fprintf(os.Stderr, "error %d: %s\n", i, e.Error())
		}
	}
}
