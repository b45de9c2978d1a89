package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/filegrid/filegrid/pkg/wire"
)

var createCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Create a new file",
	Args:  cobra.ExactArgs(1),
	RunE: simpleFileOp(wire.OpCreate, "create"),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <file>",
	Short: "Delete a file",
	Args:  cobra.ExactArgs(1),
	RunE: simpleFileOp(wire.OpDelete, "delete"),
}

var execCmd = &cobra.Command{
	Use:   "exec <file>",
	Short: "Execute the named file's content",
	Args:  cobra.ExactArgs(1),
	RunE: simpleFileOp(wire.OpExec, "exec"),
}

// simpleFileOp builds a RunE for ops that take only {file, user} and reply
// with a bare Envelope.
func simpleFileOp(op wire.Op, label string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.FileOpRequest{Op: op, File: args[0], User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr(label, resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), label)
		return nil
	}
}

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Show a file's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.InfoRequest{Op: wire.OpInfo, File: args[0], User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.InfoResponse
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("info", resp.Status, resp.Msg); err != nil {
			return err
		}

		if wantsJSON() {
			return printJSON(cmd.OutOrStdout(), resp.Info)
		}
		var pairs [][2]string
		for _, field := range strings.Split(resp.Info, "||") {
			kv := strings.SplitN(field, ":", 2)
			if len(kv) == 2 {
				pairs = append(pairs, [2]string{kv[0], kv[1]})
			}
		}
		printKV(cmd.OutOrStdout(), pairs)
		return nil
	},
}

var listFlags string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List files visible to the acting user",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.ListRequest{Op: wire.OpList, Flags: listFlags, User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.ListResponse
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("list", resp.Status, resp.Msg); err != nil {
			return err
		}

		entries := splitDelim(resp.Entries, ";;")
		if wantsJSON() {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		rows := make([][]string, len(entries))
		for i, e := range entries {
			rows[i] = []string{e}
		}
		printTable(cmd.OutOrStdout(), []string{"entry"}, rows)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listFlags, "flags", "", "Listing flags")
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "List the files the acting user can see",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.ListRequest{Op: wire.OpView, User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.ListResponse
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("view", resp.Status, resp.Msg); err != nil {
			return err
		}

		entries := splitDelim(resp.Entries, ";;")
		if wantsJSON() {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		rows := make([][]string, len(entries))
		for i, e := range entries {
			rows[i] = []string{e}
		}
		printTable(cmd.OutOrStdout(), []string{"entry"}, rows)
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <file> <folder>",
	Short: "Move a file into a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.MoveRequest{Op: wire.OpMove, File: args[0], Folder: args[1], User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("move", resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "move")
		return nil
	},
}

var createFolderCmd = &cobra.Command{
	Use:   "create-folder <folder>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.CreateFolderRequest{Op: wire.OpCreateFolder, Folder: args[0], User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("create-folder", resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "create-folder")
		return nil
	},
}

var viewFolderCmd = &cobra.Command{
	Use:   "view-folder <folder>",
	Short: "List a folder's contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.ViewFolderRequest{Op: wire.OpViewFolder, Folder: args[0], User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.ViewFolderResponse
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("view-folder", resp.Status, resp.Msg); err != nil {
			return err
		}

		entries := splitDelim(resp.Entries, ";;")
		if wantsJSON() {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		rows := make([][]string, len(entries))
		for i, e := range entries {
			rows[i] = []string{e}
		}
		printTable(cmd.OutOrStdout(), []string{"entry"}, rows)
		return nil
	},
}

var addAccessCmd = &cobra.Command{
	Use:   "add-access <file> <target> <mode>",
	Short: "Grant a target user R or W access to a file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.AccessRequest{Op: wire.OpAddAccess, File: args[0], User: Flags.User, Target: args[1], Mode: args[2]})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("add-access", resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "add-access")
		return nil
	},
}

var remAccessCmd = &cobra.Command{
	Use:   "rem-access <file> <target>",
	Short: "Revoke a target user's access to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.AccessRequest{Op: wire.OpRemAccess, File: args[0], User: Flags.User, Target: args[1]})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("rem-access", resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "rem-access")
		return nil
	},
}
