package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/filegrid/filegrid/pkg/wire"
)

var requestAccessCmd = &cobra.Command{
	Use:   "request-access <file> <owner>",
	Short: "Ask a file's owner for access",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.RequestAccessRequest{Op: wire.OpRequestAccess, File: args[0], Requester: Flags.User, Owner: args[1]})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("request-access", resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "request-access")
		return nil
	},
}

var viewRequestsCmd = &cobra.Command{
	Use:   "view-requests",
	Short: "List pending access requests against the acting user's files",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.ViewRequestsRequest{Op: wire.OpViewRequests, User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.ViewRequestsResponse
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("view-requests", resp.Status, resp.Msg); err != nil {
			return err
		}

		entries := splitDelim(resp.Requests, ";;")
		if wantsJSON() {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			parts := strings.SplitN(e, ":", 2)
			if len(parts) == 2 {
				rows = append(rows, []string{parts[0], parts[1]})
			} else {
				rows = append(rows, []string{e, ""})
			}
		}
		printTable(cmd.OutOrStdout(), []string{"file", "requester"}, rows)
		return nil
	},
}

var respondApprove bool

var respondRequestCmd = &cobra.Command{
	Use:   "respond-request <file> <requester>",
	Short: "Approve or deny a pending access request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.RespondRequestRequest{
			Op: wire.OpRespondRequest, File: args[0], Requester: args[1],
			User: Flags.User, Approve: respondApprove,
		})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("respond-request", resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "respond-request")
		return nil
	},
}

func init() {
	respondRequestCmd.Flags().BoolVar(&respondApprove, "approve", false, "Approve the request (default: deny)")
}
