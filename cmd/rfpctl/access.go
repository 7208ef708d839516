package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rfpdesk/rfpdesk/internal/authz"
)

func (c *cli) permissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "permissions [role]",
		Short: "Print the permission matrix, or one role's permissions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				role, ok := authz.ParseRole(args[0])
				if !ok {
					return fmt.Errorf("unknown role %q", args[0])
				}
				for _, p := range authz.RolePermissions(role) {
					fmt.Fprintln(out, p)
				}
				return nil
			}

			m := authz.BuildMatrix()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			header := []string{"PERMISSION"}
			for _, r := range m.Roles {
				header = append(header, strings.ToUpper(string(r)))
			}
			fmt.Fprintln(tw, strings.Join(header, "\t"))
			for _, p := range m.Permissions {
				row := []string{string(p)}
				for _, r := range m.Roles {
					mark := "-"
					if m.Grants[r][p] {
						mark = "x"
					}
					row = append(row, mark)
				}
				fmt.Fprintln(tw, strings.Join(row, "\t"))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) checkRouteCmd() *cobra.Command {
	var roleFlag string
	cmd := &cobra.Command{
		Use:   "check-route <path>",
		Short: "Explain what the edge filter does with path for a role",
		Long: "Explain what the edge filter does with path. The role comes from --role,\n" +
			"or from the signed-in session when the flag is absent.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			var role authz.Role
			if roleFlag != "" {
				r, ok := authz.ParseRole(roleFlag)
				if !ok {
					return fmt.Errorf("unknown role %q", roleFlag)
				}
				role = r
			} else {
				store, err := c.session(cmd.Context())
				if err != nil {
					return err
				}
				if id, ok := store.Snapshot().Principal(); ok {
					role = id.Role
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), explainRoute(authz.DefaultRoutePolicy(), path, role))
			return nil
		},
	}
	cmd.Flags().StringVar(&roleFlag, "role", "", "role to check (admin, manager, writer, reviewer)")
	return cmd
}

// explainRoute mirrors the edge filter's decision for a signed-in role, or
// an anonymous visitor when role is empty.
func explainRoute(policy authz.RoutePolicy, path string, role authz.Role) string {
	if policy.Bypassed(path) {
		return path + ": bypassed"
	}
	signedIn := role != ""
	if path == "/" {
		if signedIn {
			return path + ": redirect " + policy.LandingPath
		}
		return path + ": redirect " + policy.LoginPath
	}
	class := policy.Classify(path)
	switch class {
	case authz.PathAuthOnly:
		if signedIn {
			return fmt.Sprintf("%s: %s, redirect %s", path, class, policy.LandingPath)
		}
	case authz.PathProtected:
		if !signedIn {
			return fmt.Sprintf("%s: %s, redirect %s", path, class, policy.LoginPath)
		}
		if !policy.RouteAllowed(path, role) {
			return fmt.Sprintf("%s: %s, %s denied, redirect %s", path, class, role, policy.ForbiddenPath)
		}
	}
	return fmt.Sprintf("%s: %s, allowed", path, class)
}
