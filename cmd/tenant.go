package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scholar-sites/sitesync/internal/model"
	"github.com/scholar-sites/sitesync/internal/resolver"
)

var (
	tenantFrequency    string
	domainPrimary      bool
	profileDisplayName string
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants, domains, and researcher profiles",
}

var tenantAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		tenant, err := st.CreateTenant(ctx, args[0], model.ParseFrequency(tenantFrequency))
		if err != nil {
			return eris.Wrap(err, "tenant add")
		}

		fmt.Printf("Created tenant %s (%s, %s sync)\n", tenant.ID, tenant.Name, tenant.SyncFrequency)
		return nil
	},
}

var tenantDomainCmd = &cobra.Command{
	Use:   "domain <tenant-id> <hostname>",
	Short: "Attach a hostname to a tenant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		d, err := st.AddDomain(ctx, args[0], resolver.NormalizeHost(args[1]), domainPrimary)
		if err != nil {
			return eris.Wrap(err, "tenant domain")
		}

		fmt.Printf("Added domain %s -> tenant %s\n", d.Hostname, d.TenantID)
		return nil
	},
}

var tenantProfileCmd = &cobra.Command{
	Use:   "profile <tenant-id> <catalog-id>",
	Short: "Set the tenant's catalog identity",
	Long:  "Links a tenant to its researcher record in the external catalog. Running it again replaces the link.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.SetResearcherProfile(ctx, args[0], args[1], profileDisplayName)
		if err != nil {
			return eris.Wrap(err, "tenant profile")
		}

		fmt.Printf("Tenant %s now syncs catalog id %s\n", p.TenantID, p.CatalogID)
		return nil
	},
}

func init() {
	tenantAddCmd.Flags().StringVar(&tenantFrequency, "frequency", "monthly", "sync frequency: daily, weekly, monthly")
	tenantDomainCmd.Flags().BoolVar(&domainPrimary, "primary", false, "mark as the tenant's primary domain")
	tenantProfileCmd.Flags().StringVar(&profileDisplayName, "display-name", "", "researcher display name")

	tenantCmd.AddCommand(tenantAddCmd, tenantDomainCmd, tenantProfileCmd)
	rootCmd.AddCommand(tenantCmd)
}
