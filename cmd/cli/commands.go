package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-insights/internal/advisor"
	"github.com/dvloznov/finance-insights/internal/backend"
	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/infra/sqlite"
	"github.com/dvloznov/finance-insights/internal/jsonval"
	"github.com/dvloznov/finance-insights/internal/model"
	"github.com/dvloznov/finance-insights/internal/prompts"
	"github.com/dvloznov/finance-insights/internal/schema"
)

// errInvalid marks a command that ran but found the input unacceptable.
var errInvalid = errors.New("input rejected")

type cli struct {
	cfg *config.Config
	log zerolog.Logger
	out io.Writer
}

func (c *cli) runSanitize(args []string) error {
	fs := flag.NewFlagSet("sanitize", flag.ContinueOnError)
	file := fs.String("file", "", "Path to a raw bundle JSON file")
	user := fs.String("user", "", "User id to anonymize into the metadata")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("usage: cli sanitize -file PATH [-user ID]")
	}

	raw, err := readJSON(*file)
	if err != nil {
		return err
	}

	s := backend.NewSanitizer(c.cfg, c.log)
	sanitized := s.PrepareForAnalysis(raw, *user)
	if v := s.ValidateSanitized(sanitized); !v.IsValid {
		return fmt.Errorf("%w: personal data survived at %s", errInvalid, v.Path)
	}
	return c.printJSON(sanitized)
}

func (c *cli) runPrompt(args []string) error {
	fs := flag.NewFlagSet("prompt", flag.ContinueOnError)
	file := fs.String("file", "", "Path to a raw bundle JSON file")
	kind := fs.String("kind", string(schema.KindSingle), "Analysis kind: single or integrated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("usage: cli prompt -file PATH [-kind KIND]")
	}

	k, err := schema.ParseKind(*kind)
	if err != nil {
		return err
	}
	raw, err := readJSON(*file)
	if err != nil {
		return err
	}

	sanitized := backend.NewSanitizer(c.cfg, c.log).PrepareForAnalysis(raw, "")
	p, err := prompts.Render(k, sanitized)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "--- system ---\n%s\n--- user ---\n%s", p.System, p.User)
	return nil
}

func (c *cli) runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	file := fs.String("file", "", "Path to a model response JSON file")
	kind := fs.String("kind", string(schema.KindSingle), "Analysis kind: single or integrated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("usage: cli validate -file PATH [-kind KIND]")
	}

	k, err := schema.ParseKind(*kind)
	if err != nil {
		return err
	}
	response, err := readJSON(*file)
	if err != nil {
		return err
	}

	res := schema.Validate(response, k)
	for _, w := range res.Warnings {
		fmt.Fprintf(c.out, "warning: %s\n", w)
	}
	if !res.IsValid {
		for _, e := range res.Errors {
			fmt.Fprintf(c.out, "error: %s\n", e)
		}
		return fmt.Errorf("%w: %d validation error(s)", errInvalid, len(res.Errors))
	}
	fmt.Fprintln(c.out, "valid")
	return nil
}

func (c *cli) runGuard(args []string) error {
	fs := flag.NewFlagSet("guard", flag.ContinueOnError)
	file := fs.String("file", "", "Path to a model response JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("usage: cli guard -file PATH")
	}

	response, err := readJSON(*file)
	if err != nil {
		return err
	}

	guarded, err := backend.NewGuard(c.log).GuardResponse(response)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalid, err)
	}
	return c.printJSON(guarded)
}

func (c *cli) runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	file := fs.String("file", "", "Path to a raw bundle JSON file (omit to load stored transactions)")
	user := fs.String("user", "", "User id")
	kind := fs.String("kind", string(schema.KindSingle), "Analysis kind: single or integrated")
	from := fs.String("from", "", "First transaction date, YYYY-MM-DD")
	to := fs.String("to", "", "Last transaction date, YYYY-MM-DD")
	response := fs.String("response", "", "Replay a saved model response instead of calling the model")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("usage: cli analyze -user ID [-file PATH] [-kind KIND] [-from DATE] [-to DATE] [-response PATH]")
	}

	req := advisor.Request{UserID: *user, Kind: schema.Kind(*kind)}
	if *file != "" {
		bundle, err := readJSON(*file)
		if err != nil {
			return err
		}
		req.Bundle = bundle
	}
	var err error
	if req.From, err = parseDate(*from); err != nil {
		return err
	}
	if req.To, err = parseDate(*to); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	svc, cleanup, err := c.analysisService(ctx, *response)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Analyze(ctx, req)
	if err != nil {
		var ve *advisor.ValidationError
		if errors.As(err, &ve) {
			for _, issue := range ve.Issues {
				fmt.Fprintf(c.out, "error: %s\n", issue)
			}
		}
		return fmt.Errorf("%s: %w", advisor.PublicMessage(err), err)
	}

	c.log.Info().Str("analysis_id", res.Analysis.ID).Int("insights", res.Analysis.InsightCount).Msg("Analysis completed")
	return c.printJSON(res.Response)
}

// analysisService builds a Service. With a replay file the model is not
// called and nothing is stored.
func (c *cli) analysisService(ctx context.Context, replay string) (*advisor.Service, func() error, error) {
	if replay == "" {
		if err := c.cfg.Validate(); err != nil {
			return nil, nil, err
		}
		built, err := backend.Build(ctx, c.cfg, c.log)
		if err != nil {
			return nil, nil, err
		}
		return built.Service, built.Cleanup, nil
	}

	text, err := os.ReadFile(replay)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", replay, err)
	}
	svc, err := advisor.NewService(advisor.Config{
		Sanitizer:     backend.NewSanitizer(c.cfg, c.log),
		Guard:         backend.NewGuard(c.log),
		Generator:     model.Static{Text: string(text)},
		MaxAttempts:   1,
		MinConfidence: c.cfg.MinConfidence,
		Logger:        &c.log,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, func() error { return nil }, nil
}

// importedTransaction is the file format accepted by the import command.
type importedTransaction struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
}

func (c *cli) runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	file := fs.String("file", "", "Path to a JSON array of transactions")
	user := fs.String("user", "", "User id that owns the transactions")
	dbPath := fs.String("db", c.cfg.SQLiteDBPath, "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" || *user == "" {
		return errors.New("usage: cli import -file PATH -user ID [-db PATH]")
	}

	txs, err := readTransactions(*file)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(*dbPath, c.log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InsertTransactions(context.Background(), *user, txs); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "imported %d transaction(s)\n", len(txs))
	return nil
}

func readTransactions(path string) ([]domain.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("readTransactions: %w", err)
	}
	var rows []importedTransaction
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("readTransactions: %s: %w", path, err)
	}

	txs := make([]domain.Transaction, 0, len(rows))
	for i, row := range rows {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, fmt.Errorf("readTransactions: row %d: invalid date %q", i, row.Date)
		}
		currency := strings.ToUpper(strings.TrimSpace(row.Currency))
		if currency == "" {
			currency = "GBP"
		}
		txs = append(txs, domain.Transaction{
			Date:        date,
			Description: row.Description,
			Amount:      row.Amount,
			Currency:    currency,
			Category:    row.Category,
			Subcategory: row.Subcategory,
		})
	}
	return txs, nil
}

func readJSON(path string) (jsonval.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("readJSON: %w", err)
	}
	v, err := jsonval.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("readJSON: %s: %w", path, err)
	}
	return v, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func (c *cli) printJSON(v jsonval.Value) error {
	data, err := json.MarshalIndent(jsonval.ToAny(v), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%s\n", data)
	return err
}
