package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Fehler:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "patent-hand",
		Short: "Lädt Patente und Zitate von Firmen aus der PatentsView-API in eine Datenbank",
		Long: `patent-hand importiert eine Liste von Firmen und ihren alternativen Namen, lädt deren Patente
von PatentsView, verknüpft Zitate zwischen Patenten und lädt zitierte Patente nach.

Die Konfiguration kommt aus Umgebungsvariablen bzw. einer .env-Datei.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("verbose", false, "Debug-Logging aktivieren")
	root.AddCommand(newRunCommand(), newServeCommand())
	return root
}

// newLogger liefert einen Production-Logger, mit verbose einen Development-Logger.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
