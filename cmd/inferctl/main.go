// inferctl is a command-line client for the inferd HTTP API.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"inferd/pkg/types"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	addr := "http://127.0.0.1:8080"
	if v := os.Getenv("INFERD_ADDR"); v != "" {
		addr = v
	}

	var c *client
	root := &cobra.Command{
		Use:           "inferctl",
		Short:         "Control a running inferd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", addr, "inferd base URL (defaults INFERD_ADDR)")
	root.PersistentPreRun = func(*cobra.Command, []string) { c = newClient(addr) }

	root.AddCommand(
		&cobra.Command{Use: "status", Short: "Show component and download status", RunE: func(*cobra.Command, []string) error {
			var st types.StatusResponse
			if err := c.getJSON("/status", &st); err != nil {
				return err
			}
			return printJSON(st)
		}},
		&cobra.Command{Use: "modules", Short: "List registered backend modules", RunE: func(*cobra.Command, []string) error {
			var out map[string]any
			if err := c.getJSON("/modules", &out); err != nil {
				return err
			}
			return printJSON(out)
		}},
		&cobra.Command{Use: "models", Short: "List local model artifacts", RunE: func(*cobra.Command, []string) error {
			var out map[string]any
			if err := c.getJSON("/models", &out); err != nil {
				return err
			}
			return printJSON(out)
		}},
	)

	loadReq := types.LoadRequest{}
	loadCmd := &cobra.Command{
		Use:   "load <capability>",
		Short: "Load a model into a capability component",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			loadReq.Capability = types.Capability(args[0])
			var st types.ComponentStatus
			if err := c.postJSON("/models/load", loadReq, &st); err != nil {
				return err
			}
			return printJSON(st)
		},
	}
	loadCmd.Flags().StringVar(&loadReq.Path, "path", "", "Local artifact path")
	loadCmd.Flags().StringVar(&loadReq.URL, "url", "", "Remote artifact URL (downloaded first)")
	loadCmd.Flags().StringVar(&loadReq.ModelID, "id", "", "Model id (defaults to the artifact name)")
	loadCmd.Flags().StringVar(&loadReq.ModelName, "name", "", "Display name")
	loadCmd.Flags().StringVar(&loadReq.Format, "format", "", "Format hint, e.g. gguf")
	root.AddCommand(loadCmd)

	root.AddCommand(&cobra.Command{
		Use:   "unload <capability>",
		Short: "Unload a capability component's model",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var st types.ComponentStatus
			if err := c.postJSON("/models/unload", types.UnloadRequest{Capability: types.Capability(args[0])}, &st); err != nil {
				return err
			}
			return printJSON(st)
		},
	})

	genReq := types.GenerateRequest{}
	genCmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate text from the loaded model, streaming tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			genReq.Prompt = args[0]
			return c.generateStream(genReq, os.Stdout)
		},
	}
	genCmd.Flags().IntVar(&genReq.Options.MaxTokens, "max-tokens", 0, "Token cap (0 = backend default)")
	genCmd.Flags().Float32Var(&genReq.Options.Temperature, "temperature", 0, "Sampling temperature")
	root.AddCommand(genCmd)

	dlCmd := &cobra.Command{Use: "download", Short: "Manage model downloads", RunE: func(*cobra.Command, []string) error {
		return fmt.Errorf("download requires a subcommand: start|ls|status|cancel|pause|resume")
	}}
	dlReq := types.DownloadRequest{}
	dlStart := &cobra.Command{
		Use:   "start <model-id> <url> <destination>",
		Short: "Start a download task",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			dlReq.ModelID, dlReq.URL, dlReq.DestinationPath = args[0], args[1], args[2]
			var started types.DownloadStarted
			if err := c.postJSON("/downloads/", dlReq, &started); err != nil {
				return err
			}
			fmt.Println(started.TaskID)
			return nil
		},
	}
	dlStart.Flags().BoolVar(&dlReq.RequiresExtraction, "extract", false, "Extract the archive after download")
	dlCmd.AddCommand(
		dlStart,
		&cobra.Command{Use: "ls", Short: "List active download tasks", RunE: func(*cobra.Command, []string) error {
			var out map[string]any
			if err := c.getJSON("/downloads/", &out); err != nil {
				return err
			}
			return printJSON(out)
		}},
		&cobra.Command{Use: "status <task-id>", Short: "Show one task's progress", Args: cobra.ExactArgs(1), RunE: func(_ *cobra.Command, args []string) error {
			var p types.DownloadProgress
			if err := c.getJSON("/downloads/"+args[0], &p); err != nil {
				return err
			}
			return printJSON(p)
		}},
		&cobra.Command{Use: "cancel <task-id>", Short: "Cancel a task", Args: cobra.ExactArgs(1), RunE: func(_ *cobra.Command, args []string) error {
			return c.delete("/downloads/" + args[0])
		}},
		&cobra.Command{Use: "pause", Short: "Pause all downloads", RunE: func(*cobra.Command, []string) error {
			return c.postJSON("/downloads/pause", struct{}{}, nil)
		}},
		&cobra.Command{Use: "resume", Short: "Resume all downloads", RunE: func(*cobra.Command, []string) error {
			return c.postJSON("/downloads/resume", struct{}{}, nil)
		}},
	)
	root.AddCommand(dlCmd)

	return root
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
