package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filegrid/filegrid/pkg/wire"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <file> <tag>",
	Short: "Create a named checkpoint of a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.CheckpointRequest{Op: wire.OpCheckpoint, File: args[0], Tag: args[1], User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("checkpoint", resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "checkpoint")
		return nil
	},
}

var viewCheckpointCmd = &cobra.Command{
	Use:   "view-checkpoint <file> <tag>",
	Short: "Print a checkpoint's content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.CheckpointRequest{Op: wire.OpViewCheckpoint, File: args[0], Tag: args[1], User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.ViewCheckpointResponse
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("view-checkpoint", resp.Status, resp.Msg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Content)
		return nil
	},
}

var revertCmd = &cobra.Command{
	Use:   "revert <file> <tag>",
	Short: "Restore a file from a named checkpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.CheckpointRequest{Op: wire.OpRevert, File: args[0], Tag: args[1], User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("revert", resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "revert")
		return nil
	},
}

var listCheckpointsCmd = &cobra.Command{
	Use:   "list-checkpoints <file>",
	Short: "List a file's checkpoint tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.InfoRequest{Op: wire.OpListCheckpoints, File: args[0], User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.ListCheckpointsResponse
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("list-checkpoints", resp.Status, resp.Msg); err != nil {
			return err
		}

		tags := splitDelim(resp.Tags, ",")
		if wantsJSON() {
			return printJSON(cmd.OutOrStdout(), tags)
		}
		rows := make([][]string, len(tags))
		for i, t := range tags {
			rows[i] = []string{t}
		}
		printTable(cmd.OutOrStdout(), []string{"tag"}, rows)
		return nil
	},
}
