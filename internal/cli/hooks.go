package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dara-forge/forge/pkg/hooks"
)

// NewHooksCmd creates the hooks command with subcommands.
func NewHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Work with hook scripts",
		Long:  "Print starter Tengo scripts for the classifier and post-retrieve hooks",
	}

	cmd.AddCommand(newHooksTemplateCmd())

	return cmd
}

func newHooksTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "template KIND",
		Short:     "Print a starter script",
		Long:      "Print a starter script. KIND is classifier or post-retrieve.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"classifier", string(hooks.PostRetrieve)},
		RunE: func(_ *cobra.Command, args []string) error {
			return runHooksTemplate(args[0])
		},
	}

	return cmd
}

func runHooksTemplate(kind string) error {
	switch kind {
	case "classifier":
		fmt.Println(hooks.ClassifierTemplate())
	case string(hooks.PostRetrieve):
		fmt.Println(hooks.HookTemplate(hooks.PostRetrieve))
	default:
		return fmt.Errorf("unknown hook kind %q (want classifier or %s)", kind, hooks.PostRetrieve)
	}
	return nil
}
