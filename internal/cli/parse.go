package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hray3182/fakturavakt/internal/app"
	"github.com/hray3182/fakturavakt/internal/config"
	"github.com/hray3182/fakturavakt/internal/format"
	"github.com/hray3182/fakturavakt/internal/invoice"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

type parseOutput struct {
	Source     string            `json:"source"`
	Confidence int               `json:"confidence,omitempty"`
	Draft      models.BillInput  `json:"draft"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func newParseCommand(env Env) *cobra.Command {
	var qr, ai, add bool

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Read a bill draft from invoice text or a payment QR payload",
		Long: `Read a bill draft from invoice text or a payment QR payload and print it
as JSON. Use "-" to read from stdin.

Text is parsed with Swedish invoice patterns. With --ai the text is sent to
the configured language model instead (AI_API_KEY, AI_BASE_URL, AI_MODEL).`,
		Example: `  pdftotext faktura.pdf - | fakturavakt parse -
  fakturavakt parse --qr qr.txt
  fakturavakt parse --ai --add faktura.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if qr && ai {
				return errors.New("--qr and --ai cannot be combined")
			}
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			cfg, err := env.LoadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out, err := parseInvoice(ctx, env.clock(), cfg, string(raw), qr, ai)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !add {
				return nil
			}

			if out.Draft.ServiceName == "" {
				out.Draft.ServiceName = "Unknown sender"
			}
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				bill := a.Bills.AddBill(ctx, out.Draft)
				fmt.Fprint(cmd.OutOrStdout(), plain("Added "+format.BillLine(1, bill, a.Clock.Now().In(a.Config.Location()))))
				fmt.Fprintf(cmd.OutOrStdout(), "id: %s\n", bill.ID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&qr, "qr", false, "input is a KEY:VALUE payment QR payload")
	cmd.Flags().BoolVar(&ai, "ai", false, "extract with the configured language model")
	cmd.Flags().BoolVar(&add, "add", false, "add the draft as a bill")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func parseInvoice(ctx context.Context, clock clockwork.Clock, cfg *config.Config, text string, qr, ai bool) (parseOutput, error) {
	now := clock.Now().In(cfg.Location())

	switch {
	case qr:
		res, err := invoice.ParseQR(text, now)
		if err != nil {
			return parseOutput{}, err
		}
		return parseOutput{Source: "qr", Draft: res.Draft, Fields: res.Fields}, nil

	case ai:
		if !cfg.AIEnabled() {
			return parseOutput{}, errors.New("AI_API_KEY is not set")
		}
		extractor := invoice.NewAIExtractor(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, clock)
		draft, err := extractor.ExtractDraft(ctx, text)
		if err != nil {
			return parseOutput{}, err
		}
		return parseOutput{Source: "ai", Draft: draft}, nil

	default:
		parsed := invoice.ParseText(text)
		draft, err := parsed.Draft(now)
		if err != nil {
			return parseOutput{}, err
		}
		return parseOutput{Source: "text", Confidence: parsed.Confidence(), Draft: draft}, nil
	}
}
