package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPolicyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Show the effective upload policy",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("max files:           %d\n", cfg.Uploader.MaxFiles)
			fmt.Printf("max concurrent:      %d\n", cfg.Uploader.MaxConcurrentUploads)
			fmt.Printf("cancel grace:        %v\n", cfg.Uploader.CancelGrace)
			fmt.Printf("max file size:       %d bytes\n", cfg.Policy.MaxFileSizeBytes)
			fmt.Printf("allowed MIME types:  %s\n", orAny(cfg.Policy.AllowedMIMETypes))
			fmt.Printf("allowed categories:  %s\n", orAny(cfg.Uploader.AllowedCategories))
			fmt.Printf("transfer backend:    %s\n", cfg.Transfer.Kind)
		},
	}
}

func orAny(list []string) string {
	if len(list) == 0 {
		return "any"
	}
	return strings.Join(list, ", ")
}
