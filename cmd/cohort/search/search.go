// Package searchcmder provides the search command for looking up reference
// records through a running cohort gateway.
package searchcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/cohort/pkg/cliui"
	"github.com/papercomputeco/cohort/pkg/config"
	"github.com/papercomputeco/cohort/pkg/logger"
	"github.com/papercomputeco/cohort/pkg/responder"
	"github.com/papercomputeco/cohort/pkg/utils"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

type searchCommander struct {
	query         string
	kind          string
	topK          int
	quiet         bool
	gatewayTarget string
	token         string
	debug         bool

	out    io.Writer
	logger *slog.Logger
}

const searchLongDesc string = `Search reference records via a cohort gateway.

Looks up the company or application records closest to the query without
asking the model for an answer. The record kind is picked from the query the
same way chat turns pick it; pass --kind to choose it explicitly.

Use --quiet to print only record names, one per line.

Examples:
  cohort search "fintech companies from W21"
  cohort search "strong application answers" --top 10
  cohort search "payments" --kind application --quiet`

const searchShortDesc string = "Search reference records"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagGatewayTarget})
			cmder.gatewayTarget = v.GetString("client.gateway_target")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagGatewayTarget, &cmder.gatewayTarget)
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 5, "Number of records to return")
	cmd.Flags().StringVar(&cmder.kind, "kind", "", "Record kind: company or application (default: picked from the query)")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only record names, one per line")
	cmd.Flags().StringVar(&cmder.token, "token", os.Getenv("COHORT_TOKEN"), "Bearer token for an authenticated gateway")

	return cmd
}

func (c *searchCommander) run(ctx context.Context) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithWriter(os.Stderr))
	if ctx == nil {
		ctx = context.Background()
	}

	if c.kind != "" {
		if _, err := responder.ParseKind(c.kind); err != nil {
			return err
		}
	}

	c.logger.Debug("searching", "gateway", c.gatewayTarget, "query", utils.Truncate(c.query, 40), "top_k", c.topK)

	client := &http.Client{Timeout: 30 * time.Second}
	output, err := SearchAPI(ctx, client, c.gatewayTarget, c.token, c.query, c.kind, c.topK)
	if err != nil {
		return err
	}

	if output.Count == 0 {
		if !c.quiet {
			fmt.Fprintln(c.out, "No results found.")
		}
		return nil
	}

	hits, err := output.Hits()
	if err != nil {
		return err
	}

	if c.quiet {
		for _, h := range hits {
			fmt.Fprintln(c.out, h.Name)
		}
		return nil
	}

	fmt.Fprintf(c.out, "\n%s %s %s\n\n",
		headerStyle.Render("Search Results for:"),
		cliui.NameStyle.Render(fmt.Sprintf("%q", output.Query)),
		cliui.DimStyle.Render("("+string(output.Kind)+")"),
	)
	for i, h := range hits {
		c.printHit(i+1, h)
	}
	return nil
}

func (c *searchCommander) printHit(rank int, h Hit) {
	fmt.Fprintf(c.out, "  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		scoreStyle.Render("similarity: "+h.Similarity),
		cliui.NameStyle.Render(h.Name),
	)
	if h.Detail != "" {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render(h.Detail))
	}
	if h.Preview != "" {
		preview := strings.ReplaceAll(utils.Truncate(h.Preview, 80), "\n", " ")
		fmt.Fprintf(c.out, "  %s\n", previewStyle.Render(preview))
	}
	fmt.Fprintln(c.out)
}

// Output is the gateway's /search response.
type Output struct {
	Query   string            `json:"query"`
	Kind    responder.Kind    `json:"kind"`
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

// Hit is one result flattened for display.
type Hit struct {
	Name       string
	Detail     string
	Preview    string
	Similarity string
}

// Hits decodes Results according to Kind.
func (o *Output) Hits() ([]Hit, error) {
	hits := make([]Hit, 0, len(o.Results))
	for _, raw := range o.Results {
		switch o.Kind {
		case responder.KindApplication:
			var rec responder.ApplicationRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("decoding application record: %w", err)
			}
			h := Hit{
				Name:       rec.CompanyName,
				Detail:     strings.TrimSpace(rec.Batch + " " + rec.Status),
				Preview:    rec.Description,
				Similarity: rec.Similarity,
			}
			if h.Preview == "" && len(rec.Questions) > 0 {
				h.Preview = rec.Questions[0].Question + " " + rec.Questions[0].Answer
			}
			hits = append(hits, h)

		default:
			var rec responder.CompanyRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("decoding company record: %w", err)
			}
			hits = append(hits, Hit{
				Name:       rec.Name,
				Detail:     strings.TrimSpace(rec.Batch + " " + rec.Industries),
				Preview:    rec.Description,
				Similarity: rec.Similarity,
			})
		}
	}
	return hits, nil
}

// SearchAPI calls the gateway's /search endpoint and returns the parsed
// output. An empty kind lets the gateway classify the query.
func SearchAPI(ctx context.Context, client *http.Client, gatewayTarget, token, query, kind string, topK int) (*Output, error) {
	searchURL, err := url.Parse(gatewayTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway URL: %w", err)
	}
	searchURL.Path = strings.TrimRight(searchURL.Path, "/") + "/search"
	q := searchURL.Query()
	q.Set("query", query)
	q.Set("top_k", strconv.Itoa(topK))
	if kind != "" {
		q.Set("kind", kind)
	}
	searchURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cohort gateway at %s: %w", gatewayTarget, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("search request failed (HTTP %d): %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("search request failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var output Output
	if err := json.Unmarshal(body, &output); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return &output, nil
}
