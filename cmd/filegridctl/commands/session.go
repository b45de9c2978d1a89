package commands

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/filegrid/filegrid/pkg/wire"
)

var readCmd = &cobra.Command{
	Use:   "read <file>",
	Short: "Read a file's content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := args[0]
		r, err := route(wire.OpReadRoute, file)
		if err != nil {
			return err
		}
		msg, err := call(ssAddr(r), wire.ReadRequest{Op: wire.OpRead, File: file, User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.ReadResponse
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("read", resp.Status, resp.Msg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Content)
		return nil
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo <file>",
	Short: "Restore a file from its single-level undo backup via the storage server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := args[0]
		r, err := route(wire.OpWriteRoute, file)
		if err != nil {
			return err
		}
		msg, err := call(ssAddr(r), wire.UndoRequest{Op: wire.OpUndo, File: file, User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("undo", resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "undo")
		return nil
	},
}

var streamCmd = &cobra.Command{
	Use:   "stream <file>",
	Short: "Stream a file's content word by word",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := args[0]
		r, err := route(wire.OpStreamRoute, file)
		if err != nil {
			return err
		}

		conn, err := net.DialTimeout("tcp", ssAddr(r), dialTimeout)
		if err != nil {
			return fmt.Errorf("dial %s: %w", ssAddr(r), err)
		}
		defer conn.Close()

		w := wire.NewWriter(conn)
		rd := wire.NewReader(conn)
		if err := w.WriteMessage(wire.StreamRequest{Op: wire.OpStream, File: file, User: Flags.User}); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		words := 0
		for {
			msg, err := rd.ReadMessage()
			if err != nil {
				return err
			}
			switch msg.Op {
			case wire.OpTok:
				var tok wire.TokMessage
				if err := msg.Decode(&tok); err != nil {
					return err
				}
				if words > 0 {
					fmt.Fprint(out, " ")
				}
				fmt.Fprint(out, tok.W)
				words++
			case wire.OpStop:
				fmt.Fprintln(out)
				return nil
			default:
				var resp wire.Envelope
				if err := msg.Decode(&resp); err != nil {
					return err
				}
				return statusErr("stream", resp.Status, resp.Msg)
			}
		}
	},
}

var (
	writeSentenceIdx int
	writeEdits       []string
)

var writeCmd = &cobra.Command{
	Use:   "write <file>",
	Short: "Open a write session on a sentence, apply word edits, and commit",
	Long: `write opens a write session on the sentence at --sentence, applies
every --edit "wordIndex:content" pair in order, and commits, all in one
invocation, since filegridctl issues one op per command rather than
holding an interactive session open.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := args[0]
		r, err := route(wire.OpWriteRoute, file)
		if err != nil {
			return err
		}
		addr := ssAddr(r)

		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return fmt.Errorf("dial %s: %w", addr, err)
		}
		defer conn.Close()

		w := wire.NewWriter(conn)
		rd := wire.NewReader(conn)

		begin := wire.WriteBeginRequest{Op: wire.OpWriteBegin, File: file, User: Flags.User, SentenceIdx: writeSentenceIdx}
		if err := w.WriteMessage(begin); err != nil {
			return err
		}
		msg, err := rd.ReadMessage()
		if err != nil {
			return err
		}
		var beginResp wire.Envelope
		if err := msg.Decode(&beginResp); err != nil {
			return err
		}
		if err := statusErr("write-begin", beginResp.Status, beginResp.Msg); err != nil {
			return err
		}

		for _, edit := range writeEdits {
			idx, content, ok := strings.Cut(edit, ":")
			if !ok {
				return fmt.Errorf("invalid --edit %q, want wordIndex:content", edit)
			}
			wordIdx, err := strconv.Atoi(idx)
			if err != nil {
				return fmt.Errorf("invalid --edit word index %q: %w", idx, err)
			}
			if err := w.WriteMessage(wire.WriteEditRequest{Op: wire.OpWriteEdit, WordIndex: wordIdx, Content: content}); err != nil {
				return err
			}
			msg, err := rd.ReadMessage()
			if err != nil {
				return err
			}
			var editResp wire.Envelope
			if err := msg.Decode(&editResp); err != nil {
				return err
			}
			if err := statusErr("write-edit", editResp.Status, editResp.Msg); err != nil {
				return err
			}
		}

		if err := w.WriteMessage(wire.WriteCommitRequest{Op: wire.OpWriteCommit, File: file}); err != nil {
			return err
		}
		msg, err = rd.ReadMessage()
		if err != nil {
			return err
		}
		var commitResp wire.Envelope
		if err := msg.Decode(&commitResp); err != nil {
			return err
		}
		if err := statusErr("write-commit", commitResp.Status, commitResp.Msg); err != nil {
			return err
		}

		printSuccess(cmd.OutOrStdout(), "write")
		return nil
	},
}

func init() {
	writeCmd.Flags().IntVar(&writeSentenceIdx, "sentence", 0, "Sentence index to lock")
	writeCmd.Flags().StringArrayVar(&writeEdits, "edit", nil, `Word edit "wordIndex:content" (repeatable)`)
}
