package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filegrid/filegrid/pkg/wire"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the acting user with the name server",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.CLIRegisterRequest{Op: wire.OpCLIRegister, User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("register", resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "register")
		return nil
	},
}

var deregisterCmd = &cobra.Command{
	Use:   "deregister",
	Short: "Deregister the acting user from the name server",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.CLIDeregisterRequest{Op: wire.OpCLIDeregister, User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.Envelope
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("deregister", resp.Status, resp.Msg); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "deregister")
		return nil
	},
}

var listUsersCmd = &cobra.Command{
	Use:   "list-users",
	Short: "List users registered with the name server",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(struct {
			Op wire.Op `json:"op"`
		}{Op: wire.OpListUsers})
		if err != nil {
			return err
		}
		var resp wire.ListUsersResponse
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("list-users", resp.Status, resp.Msg); err != nil {
			return err
		}

		if wantsJSON() {
			return printJSON(cmd.OutOrStdout(), resp.Users)
		}
		rows := make([][]string, len(resp.Users))
		for i, u := range resp.Users {
			rows[i] = []string{u}
		}
		printTable(cmd.OutOrStdout(), []string{"user"}, rows)
		return nil
	},
}

var viewRouteCmd = &cobra.Command{
	Use:   "view-route",
	Short: "Look up any live storage server",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := callNM(wire.ViewRouteRequest{Op: wire.OpViewRoute, User: Flags.User})
		if err != nil {
			return err
		}
		var resp wire.RouteResponse
		if err := msg.Decode(&resp); err != nil {
			return err
		}
		if err := statusErr("view-route", resp.Status, resp.Msg); err != nil {
			return err
		}

		if wantsJSON() {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printKV(cmd.OutOrStdout(), [][2]string{
			{"ss_id", resp.SSID},
			{"addr", fmt.Sprintf("%s:%d", resp.Host, resp.ClientPort)},
			{"replica", fmt.Sprint(resp.IsReplica)},
		})
		return nil
	},
}
