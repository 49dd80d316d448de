// snipctl drives a running snip-assist instance over its loopback port:
// start selections, run one-shot analyses on image files, manage hotkey
// bindings and read back recent results.
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"snip-assist/ipc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	cmd := &cobra.Command{
		Use:           "snipctl",
		Short:         "Control a running snip-assist instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print the raw response envelope as JSON")

	cmd.AddCommand(
		newSelectCmd(opts),
		newCancelCmd(opts),
		newAnalyzeCmd(opts),
		newScreenshotCmd(),
		newBindCmd(opts),
		newUnbindCmd(opts),
		newHistoryCmd(opts),
	)
	return cmd
}

// delegate finds the resident and runs one operation against it.
func delegate(req ipc.Request) (ipc.Response, error) {
	port, found := ipc.Detect()
	if !found {
		return ipc.Response{}, fmt.Errorf("no running snip-assist instance found")
	}
	return ipc.Call(port, req)
}

func printResponse(opts *cliOptions, resp ipc.Response) error {
	if opts.jsonOutput {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		if !resp.Success {
			os.Exit(1)
		}
		return nil
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	switch data := resp.Data.(type) {
	case nil:
		fmt.Println("ok")
	case string:
		fmt.Println(data)
	case map[string]interface{}:
		if text, ok := data["text"].(string); ok {
			fmt.Println(text)
			return nil
		}
		if score, ok := data["score"]; ok {
			fmt.Printf("Score: %v/100\n%v\n", score, data["feedback"])
			return nil
		}
		out, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(out))
	default:
		out, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(out))
	}
	return nil
}

func newSelectCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "select {prompt|image|textgrab}",
		Short:     "Open the selection overlay for an analyzer",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"prompt", "image", "textgrab"},
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := delegate(ipc.Request{Op: ipc.OpStartSelection, Kind: args[0]})
			if err != nil {
				return err
			}
			return printResponse(opts, resp)
		},
	}
}

func newCancelCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the in-flight selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := delegate(ipc.Request{Op: ipc.OpCancelSelection})
			if err != nil {
				return err
			}
			return printResponse(opts, resp)
		},
	}
}

func newAnalyzeCmd(opts *cliOptions) *cobra.Command {
	var (
		file   string
		prompt string
	)
	cmd := &cobra.Command{
		Use:   "analyze {prompt|image|textgrab}",
		Short: "Run one analyzer on an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			resp, err := delegate(ipc.Request{
				Op:     ipc.OpDispatch,
				Kind:   args[0],
				Image:  img,
				Prompt: prompt,
			})
			if err != nil {
				return err
			}
			return printResponse(opts, resp)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to a JPEG or PNG file")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Instructions for the prompt analyzer")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newScreenshotCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Save the resident's stored pre-capture screenshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := delegate(ipc.Request{Op: ipc.OpStoredShot})
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%s", resp.Error)
			}
			// []byte crosses the wire as a base64 string.
			encoded, ok := resp.Data.(string)
			if !ok {
				return fmt.Errorf("unexpected screenshot payload %T", resp.Data)
			}
			img, err := decodeBase64(encoded)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, img, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes to %s\n", len(img), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "screenshot.jpg", "Output file")
	return cmd
}

func newBindCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bind {prompt|image|textgrab|speech|master} <accelerator>",
		Short: "Register a hotkey, e.g. bind textgrab Ctrl+Alt+E",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := delegate(ipc.Request{
				Op:          ipc.OpRegisterHotkey,
				Kind:        args[0],
				Accelerator: args[1],
			})
			if err != nil {
				return err
			}
			return printResponse(opts, resp)
		},
	}
}

func newUnbindCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unbind {prompt|image|textgrab|speech|master}",
		Short: "Remove a hotkey binding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := delegate(ipc.Request{Op: ipc.OpUnregisterHotkey, Kind: args[0]})
			if err != nil {
				return err
			}
			return printResponse(opts, resp)
		},
	}
}

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent analysis results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := delegate(ipc.Request{Op: ipc.OpHistory, Limit: limit})
			if err != nil {
				return err
			}
			if opts.jsonOutput || !resp.Success {
				return printResponse(opts, resp)
			}
			entries, ok := resp.Data.([]interface{})
			if !ok {
				return printResponse(opts, resp)
			}
			for _, raw := range entries {
				entry, ok := raw.(map[string]interface{})
				if !ok {
					continue
				}
				status := "ok"
				if ok, _ := entry["success"].(bool); !ok {
					status = "failed"
				}
				result, _ := entry["result"].(string)
				fmt.Printf("%-10v %-8s %s\n", entry["kind"], status, firstLine(result))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries to show")
	return cmd
}

func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot payload: %w", err)
	}
	return data, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
