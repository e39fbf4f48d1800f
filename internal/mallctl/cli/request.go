package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wh01sJake/mall-cloud/pkg/mallsdk"
)

func getCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Send an authenticated GET and print the response data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, opts, http.MethodGet, args[0], nil)
		},
	}
}

func postCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "post <path> [json]",
		Short: "Send an authenticated POST with a JSON body and print the response data",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("body is not valid JSON")
				}
				body = json.RawMessage(args[1])
			}
			return send(cmd, opts, http.MethodPost, args[0], body)
		},
	}
}

func send(cmd *cobra.Command, opts *options, method, path string, body any) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	data, err := mallsdk.Call[json.RawMessage](cmd.Context(), opts.application.Client(), method, path, body)
	if err != nil {
		return explain(opts, err)
	}
	if len(data) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "null")
		return nil
	}
	return printJSON(cmd.OutOrStdout(), data)
}
