package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"partsuite/internal/app"
	"partsuite/internal/config"
	"partsuite/internal/pipeline"
	"partsuite/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, os.Stderr)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	a, err := app.Build(cfg, db, logger)
	must(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "bundle:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "bundle pdf path")
		out := fs.String("xlsx", "", "optional GL coding workbook path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		row, _, err := a.Bundles.RegisterFile(*input)
		must(err)
		svc, err := a.Listener()
		must(err)
		ok, err := svc.ProcessBundle(ctx, row)
		must(err)
		if !ok {
			bundle, err := db.MustBundleByID(row.ID)
			must(err)
			must(fmt.Errorf("bundle %d failed: %s", row.ID, deref(bundle.Error)))
		}
		run, err := db.LatestRunForBundle(ctx, row.ID)
		must(err)
		fmt.Printf("bundle processed id=%d run=%s method=%s invoices=%d\n", row.ID, run.ID, run.Method, run.Invoices)
		if strings.TrimSpace(*out) != "" {
			rows, err := db.GetExportRows(ctx, run.ID)
			must(err)
			must(pipeline.ExportRowsToXLSX(rows, *out))
			fmt.Printf("exported %d rows to %s\n", len(rows), *out)
		}
	case "text:extract":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "pdf path")
		out := fs.String("out", "", "optional json output path, stdout when empty")
		fresh := fs.Bool("fresh", false, "ignore cached page text")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		row, _, err := a.Bundles.RegisterFile(*input)
		must(err)
		dump, err := pipeline.ExtractCachedText(ctx, db, a.Extractor, row.ID, *input, *fresh)
		w := os.Stdout
		if strings.TrimSpace(*out) != "" {
			f, ferr := os.Create(*out)
			must(ferr)
			defer f.Close()
			w = f
		}
		must(pipeline.WriteTextDump(w, dump))
		must(err)
	case "run:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.String("run", "", "run id")
		bundleID := fs.Int("bundleId", 0, "bundle id, shows its latest run")
		_ = fs.Parse(os.Args[2:])
		id := *runID
		if id == "" {
			run, err := db.LatestRunForBundle(ctx, *bundleID)
			must(err)
			if run == nil {
				must(fmt.Errorf("no run for bundleId=%d", *bundleID))
			}
			id = run.ID
		}
		invoices, err := db.ListInvoices(ctx, id)
		must(err)
		fmt.Printf("run=%s invoices=%d\n", id, len(invoices))
		for _, inv := range invoices {
			fmt.Printf("  %-12s %-20s %-10s %-12s pages=%v\n", inv.Key, inv.TypeDesc, inv.DateISO, inv.Status, inv.Pages)
		}
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.String("run", "", "run id")
		bundleID := fs.Int("bundleId", 0, "bundle id, exports its latest run")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*out) == "" || (*runID == "" && *bundleID == 0) {
			must(fmt.Errorf("--out and one of --run or --bundleId are required"))
		}
		id := *runID
		if id == "" {
			run, err := db.LatestRunForBundle(ctx, *bundleID)
			must(err)
			if run == nil {
				must(fmt.Errorf("no run for bundleId=%d", *bundleID))
			}
			id = run.ID
		}
		rows, err := db.GetExportRows(ctx, id)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no export rows for run=%s", id))
		}
		must(pipeline.ExportRowsToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		fetch, err := a.FetchService(*provider)
		must(err)
		if fetch == nil {
			must(fmt.Errorf("--provider is required"))
		}
		result, err := fetch.FetchAndStore(*label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d matched=%d bundles=%d new=%d\n", *provider, result.Fetched, result.Matched, result.Bundles, result.Created)
	case "inbox:listen":
		svc, err := a.Listener()
		must(err)
		must(svc.Run(ctx))
	case "inbox:status":
		svc, err := a.Listener()
		must(err)
		st, err := svc.Status()
		must(err)
		fmt.Printf("pending=%d last_cycle=%s last_export=%s\n", st.Pending, deref(st.LastCycle), deref(st.LastExport))
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(os.Args[2:])
		logger.Info("http server listening", "addr", *addr)
		must(a.Server().Router().Run(*addr))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: partsuite <command>")
	fmt.Println("commands:")
	fmt.Println("  bundle:process --input=bundle.pdf [--xlsx=./out/gl.xlsx]")
	fmt.Println("  text:extract --input=bundle.pdf [--out=pages.json] [--fresh]")
	fmt.Println("  run:show --run=<id>|--bundleId=1")
	fmt.Println("  export:xlsx --run=<id>|--bundleId=1 --out=./out/gl.xlsx")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  inbox:listen")
	fmt.Println("  inbox:status")
	fmt.Println("  serve [--addr=:8000]")
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
