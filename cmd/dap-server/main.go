// Command dap-server is the outer front end: a cobra command tree wiring
// the dap package to stdio, continuing the teacher's own cmd/viewcore and
// ogle/cmd/ogleproxy convention of a small flag-driven launcher, upgraded
// to cobra per the rest of this module's CLI stack.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dap-server",
		Short: "DAP session controller for on-chip microcontroller debugging",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level: trace, debug, info, warn, error")
	root.AddCommand(serveCmd(), replCmdTree())
	return root
}

func newLogger() *logrus.Entry {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logrus.NewEntry(log)
}
