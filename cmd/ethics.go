package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
)

// errNonCompliant is returned by ethics check when the service rejects the use.
var errNonCompliant = errors.New("intended use is not compliant with the ethical-use policy")

func newEthicsCmd(deps *dependencies) *cobra.Command {
	ethicsCmd := &cobra.Command{
		Use:   "ethics",
		Short: "Check intended use against the service's ethical-use policies",
	}
	ethicsCmd.AddCommand(newEthicsCheckCmd(deps), newEthicsPoliciesCmd())
	return ethicsCmd
}

func newEthicsCheckCmd(deps *dependencies) *cobra.Command {
	var purpose, inputType string

	checkCmd := &cobra.Command{
		Use:   "check [file|-]",
		Short: "Ask the service whether analyzing an artifact for a purpose is acceptable",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			name, content, err := readInput(deps, args)
			if err != nil {
				return err
			}
			check := schemas.ComplianceCheck{
				Content: strings.TrimSpace(string(content)),
				Purpose: strings.TrimSpace(purpose),
			}
			if check.Content == "" {
				return schemas.ErrEmptyContent
			}
			switch {
			case inputType != "":
				if check.InputType, err = schemas.ParseInputType(inputType); err != nil {
					return err
				}
			case name != "":
				check.InputType = inferInputType(name)
			}

			c, err := newAPIClient(cfg, false)
			if err != nil {
				return err
			}
			verdict, err := c.EthicsCheck(ctx, check)
			if err != nil {
				return err
			}

			if err := printStructured(cmd, cfg, verdict, func(w io.Writer) {
				status := "compliant"
				if !verdict.Compliant {
					status = "NOT compliant"
				}
				fmt.Fprintf(w, "Verdict:\t%s\n", status)
				if verdict.Message != "" {
					fmt.Fprintf(w, "Message:\t%s\n", verdict.Message)
				}
				for _, warning := range verdict.Warnings {
					fmt.Fprintf(w, "Warning:\t%s\n", warning)
				}
			}); err != nil {
				return err
			}
			if !verdict.Compliant {
				return errNonCompliant
			}
			return nil
		},
	}

	checkCmd.Flags().StringVar(&purpose, "purpose", "", "what the analysis is for")
	checkCmd.Flags().StringVarP(&inputType, "type", "t", "", "input type: code, api, sql, config")
	return checkCmd
}

func newEthicsPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List the ethical-use policies published by the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			c, err := newAPIClient(cfg, false)
			if err != nil {
				return err
			}
			policies, err := c.EthicsPolicies(ctx)
			if err != nil {
				return err
			}

			return printStructured(cmd, cfg, policies, func(w io.Writer) {
				if len(policies) == 0 {
					fmt.Fprintln(w, "No policies published.")
					return
				}
				for i, p := range policies {
					if i > 0 {
						fmt.Fprintln(w)
					}
					fmt.Fprintf(w, "%s\t(updated %s)\n", p.Title, p.LastUpdated)
					fmt.Fprintln(w, p.Content)
				}
			})
		},
	}
}
