package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"siteworker/internal/sites"
)

var (
	siteSlug         string
	sitePrimaryHost  string
	siteAllowedHosts []string
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Provision and list sites",
}

var siteCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a new site",
	Example: `  swctl site create --slug blog --host blog.example.com --allow www.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		site := &sites.Site{
			Slug:         siteSlug,
			PrimaryHost:  sitePrimaryHost,
			AllowedHosts: siteAllowedHosts,
		}
		if err := sites.Create(e.dbManager.GetConnection(), site); err != nil {
			return fmt.Errorf("failed to create site: %w", err)
		}

		fmt.Printf("Site %q created (id %d, host %s)\n", site.Slug, site.ID, site.PrimaryHost)
		return nil
	},
}

var siteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List provisioned sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		all, err := sites.List(e.dbManager.GetConnection())
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("No sites provisioned")
			return nil
		}
		for _, s := range all {
			fmt.Printf("%-4d %-20s %-30s %s\n", s.ID, s.Slug, s.PrimaryHost, strings.Join(s.AllowedHosts, ","))
		}
		return nil
	},
}

func init() {
	siteCreateCmd.Flags().StringVar(&siteSlug, "slug", "", "Site slug used by clients (required)")
	siteCreateCmd.Flags().StringVar(&sitePrimaryHost, "host", "", "Primary hostname (required)")
	siteCreateCmd.Flags().StringSliceVar(&siteAllowedHosts, "allow", nil, "Additional allowed hostnames")
	siteCreateCmd.MarkFlagRequired("slug")
	siteCreateCmd.MarkFlagRequired("host")

	siteCmd.AddCommand(siteCreateCmd, siteListCmd)
	rootCmd.AddCommand(siteCmd)
}
