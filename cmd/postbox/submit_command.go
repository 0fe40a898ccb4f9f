package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"postbox/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		intent     string
		text       string
		latitude   float64
		longitude  float64
		postalCode string
		ward       string
		fields     []string
		citizenRef string
		attachPath string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Capture a complaint into the local queue",
		Long:  "Capture a complaint into the local queue. The record is stored durably and delivered by the daemon once the backend is reachable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.SubmitRequest{
				Intent:     strings.TrimSpace(intent),
				Text:       strings.TrimSpace(text),
				PostalCode: strings.TrimSpace(postalCode),
				Ward:       strings.TrimSpace(ward),
				CitizenRef: strings.TrimSpace(citizenRef),
			}
			if req.Intent == "" {
				return fmt.Errorf("--intent is required")
			}
			if req.Text == "" {
				return fmt.Errorf("--text is required")
			}
			if cmd.Flags().Changed("lat") {
				lat := latitude
				req.Latitude = &lat
			}
			if cmd.Flags().Changed("lon") {
				lon := longitude
				req.Longitude = &lon
			}
			if len(fields) > 0 {
				req.StructuredFields = make(map[string]string, len(fields))
				for _, field := range fields {
					key, value, ok := strings.Cut(field, "=")
					if !ok || strings.TrimSpace(key) == "" {
						return fmt.Errorf("invalid --field %q, expected key=value", field)
					}
					req.StructuredFields[strings.TrimSpace(key)] = value
				}
			}
			if attachPath != "" {
				data, err := os.ReadFile(attachPath)
				if err != nil {
					return fmt.Errorf("read attachment: %w", err)
				}
				req.AttachmentName = filepath.Base(attachPath)
				req.AttachmentType = mime.TypeByExtension(filepath.Ext(attachPath))
				if req.AttachmentType == "" {
					req.AttachmentType = "application/octet-stream"
				}
				req.AttachmentData = data
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Record)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued submission %s (%s)\n", resp.Record.ID, resp.Record.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&intent, "intent", "", "Complaint category, for example pothole or streetlight")
	cmd.Flags().StringVar(&text, "text", "", "Free-form complaint description")
	cmd.Flags().Float64Var(&latitude, "lat", 0, "Latitude of the reported location")
	cmd.Flags().Float64Var(&longitude, "lon", 0, "Longitude of the reported location")
	cmd.Flags().StringVar(&postalCode, "postal-code", "", "Postal code of the reported location")
	cmd.Flags().StringVar(&ward, "ward", "", "Municipal ward of the reported location")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Additional structured field as key=value (repeatable)")
	cmd.Flags().StringVar(&citizenRef, "citizen-ref", "", "Masked citizen identifier")
	cmd.Flags().StringVar(&attachPath, "attach", "", "Photo or document to attach")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the queued record as JSON")

	return cmd
}
