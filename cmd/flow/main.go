// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command flow spins a demonstration pipeline: a greeting producer feeding
// a counting consumer, cancelled after a short deadline. It exists to
// exercise the runtime end to end; real pipelines embed the library.
package main

import (
	"fmt"
	"os"
	"time"

	"code.hybscloud.com/flow"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:           "flow",
		Short:         "In-process dataflow pipeline runtime",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flow:", err)
		os.Exit(1)
	}
}

func run() error {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
	).Logger()

	net, err := flow.NewNetwork(flow.Configure().Logger(logger))
	if err != nil {
		return err
	}

	var delivered int
	if err := net.Push(
		flow.MakeProducer(func() string { return "Hello World" }, "hello_world"),
		flow.MakeConsumer(func(string) { delivered++ }, "hello_world"),
	); err != nil {
		return err
	}
	net.CancelAfter(time.Millisecond)

	if err := flow.Spin(net); err != nil {
		return err
	}
	fmt.Printf("delivered %d messages\n", delivered)
	return nil
}
