package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/campaign"
	"github.com/foxzi/outreach/internal/geo"
	"github.com/foxzi/outreach/internal/template"
	"github.com/foxzi/outreach/internal/testsend"
)

var (
	renderAll    bool
	renderValues = template.Values{}
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign file commands",
}

var campaignValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a campaign file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignValidate,
}

var campaignRenderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render the campaign templates with sample values",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignRender,
}

var locationsCmd = &cobra.Command{
	Use:   "locations [code]",
	Short: "List target countries, or the cities of one country",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLocations,
}

func init() {
	sample := testsend.DefaultRequest()
	campaignRenderCmd.Flags().StringVar(&renderValues.CompanyName, "company", sample.CompanyName, "Company name")
	campaignRenderCmd.Flags().StringVar(&renderValues.CompanyInfo, "company-info", sample.CompanyInfo, "Company description")
	campaignRenderCmd.Flags().StringVar(&renderValues.ContactName, "contact", sample.ContactName, "Contact name")
	campaignRenderCmd.Flags().StringVar(&renderValues.Website, "website", sample.Website, "Website")
	campaignRenderCmd.Flags().BoolVar(&renderAll, "all", false, "Render every active template")

	campaignCmd.AddCommand(campaignValidateCmd, campaignRenderCmd)
	rootCmd.AddCommand(campaignCmd, locationsCmd)
}

func runCampaignValidate(cmd *cobra.Command, args []string) error {
	cfg, err := campaign.LoadFile(args[0])
	if err != nil {
		return err
	}

	res := campaign.Validate(cfg)
	printValidation(cmd.OutOrStdout(), cfg, res)
	if !res.IsValid {
		return fmt.Errorf("campaign is invalid: %d problem(s)", len(res.Errors))
	}
	return nil
}

func printValidation(w io.Writer, cfg campaign.Config, res campaign.ValidationResult) {
	if res.IsValid {
		fmt.Fprintln(w, "Campaign is valid")
	} else {
		fmt.Fprintln(w, "Campaign is invalid:")
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}

	fmt.Fprintf(w, "\nIndustry:   %s\n", orDash(cfg.Industry))
	fmt.Fprintf(w, "Location:   %s\n", template.LocationFor(cfg.City, cfg.Country))
	fmt.Fprintf(w, "Templates:  %d active of %d (A/B testing %s)\n",
		len(campaign.ActiveTemplates(cfg)), len(cfg.Templates), onOff(cfg.ABTestingEnabled))
	fmt.Fprintf(w, "Limits:     %d emails/day, %d-%d min apart\n", cfg.EmailsPerDay, cfg.MinInterval, cfg.MaxInterval)
	fmt.Fprintf(w, "Window:     %s-%s\n", cfg.StartTime, cfg.EndTime)
	if days := cfg.Schedule.Days(); days > 0 {
		fmt.Fprintf(w, "Schedule:   %s (%d days)\n", cfg.Schedule.Kind, days)
	} else {
		fmt.Fprintf(w, "Schedule:   %s\n", cfg.Schedule.Kind)
	}
}

func runCampaignRender(cmd *cobra.Command, args []string) error {
	cfg, err := campaign.LoadFile(args[0])
	if err != nil {
		return err
	}

	templates := campaign.ActiveTemplates(cfg)
	if len(templates) == 0 {
		return fmt.Errorf("campaign has no templates")
	}
	if !renderAll {
		templates = templates[:1]
	}

	values := renderValues
	values.Industry = cfg.Industry
	values.Location = template.LocationFor(cfg.City, cfg.Country)

	out := cmd.OutOrStdout()
	for i, t := range templates {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "--- template %s ---\n", t.ID)
		fmt.Fprintln(out, template.RenderValues(t.Content, values))
		if unknown := template.Scan(t.Content).Unknown; len(unknown) > 0 {
			fmt.Fprintf(out, "(unknown placeholders: %s)\n", strings.Join(unknown, ", "))
		}
	}
	return nil
}

func runLocations(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		country, ok := geo.Lookup(strings.ToLower(args[0]))
		if !ok {
			return fmt.Errorf("unknown country: %s", args[0])
		}
		fmt.Fprintf(out, "%s (%s)\n", country.Name, country.Code)
		if len(country.Cities) == 0 {
			fmt.Fprintln(out, "  No city selection")
			return nil
		}
		for _, city := range country.Cities {
			fmt.Fprintf(out, "  %s\n", city)
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tCITIES")
	fmt.Fprintln(w, "----\t----\t------")
	for _, c := range geo.Countries() {
		fmt.Fprintf(w, "%s\t%s\t%d\n", c.Code, c.Name, len(c.Cities))
	}
	return w.Flush()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
