package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ogulcanaydogan/attestview/internal/certinfo"
	"github.com/ogulcanaydogan/attestview/internal/config"
	"github.com/ogulcanaydogan/attestview/internal/history"
	"github.com/ogulcanaydogan/attestview/internal/inspect"
	"github.com/ogulcanaydogan/attestview/internal/logging"
	policyrego "github.com/ogulcanaydogan/attestview/internal/policy/rego"
	policyyaml "github.com/ogulcanaydogan/attestview/internal/policy/yaml"
	"github.com/ogulcanaydogan/attestview/internal/report"
	"github.com/ogulcanaydogan/attestview/internal/server"
	"github.com/ogulcanaydogan/attestview/internal/share"
	"github.com/ogulcanaydogan/attestview/internal/store"
)

const (
	exitPass        = 0
	exitGeneric     = 1
	exitInvalidJSON = 2
	exitPolicyFail  = 13
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func (e cliError) Unwrap() error { return e.err }

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitGeneric)
	}
}

var ociFetchFunc = store.FetchOCI
var ociPublishFunc = store.PublishOCI
var ociPullFunc = store.PullOCI

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "attestview",
		Short:         "Inspect supply-chain attestation documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", config.DefaultPath, "config file path")
	root.PersistentFlags().String("env-file", ".env", "dotenv file with ATTESTVIEW_* overrides")
	root.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")

	root.AddCommand(newInspectCommand())
	root.AddCommand(newHistoryCommand())
	root.AddCommand(newShareCommand())
	root.AddCommand(newCertCommand())
	root.AddCommand(newGateCommand())
	root.AddCommand(newPublishCommand())
	root.AddCommand(newPullCommand())
	root.AddCommand(newServeCommand())
	return root
}

type runtimeEnv struct {
	cfg    config.Config
	logger *zap.Logger
}

// loadRuntime layers config file, dotenv, environment and flags. Commands
// run without the root command fall back to defaults for the persistent
// flags.
func loadRuntime(cmd *cobra.Command) (*runtimeEnv, error) {
	envFile := flagString(cmd, "env-file")
	if envFile == "" {
		envFile = ".env"
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flagString(cmd, "config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if lvl := flagString(cmd, "log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment,
		Service:     "attestview",
	})
	if err != nil {
		return nil, err
	}
	return &runtimeEnv{cfg: cfg, logger: logger}, nil
}

func flagString(cmd *cobra.Command, name string) string {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		return ""
	}
	return f.Value.String()
}

func (e *runtimeEnv) history() *history.Store {
	return history.Open(e.cfg.HistoryPath, e.cfg.HistoryLimit, history.WithLogger(e.logger))
}

func (e *runtimeEnv) shareLink() (share.Link, error) {
	codec, err := share.ParseCodec(e.cfg.ShareCodec)
	if err != nil {
		return share.Link{}, err
	}
	return share.Link{BaseURL: e.cfg.ShareBaseURL, MaxLength: e.cfg.ShareMaxLength, Codec: codec}, nil
}

// readInput reads a file, or stdin when path is empty or "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return raw, nil
}

func runInspect(raw []byte, opts inspect.Options) (inspect.Report, error) {
	rep, err := inspect.Run(raw, opts)
	if errors.Is(err, inspect.ErrInvalidJSON) {
		return inspect.Report{}, cliError{code: exitInvalidJSON, err: inspect.ErrInvalidJSON}
	}
	return rep, err
}

func newInspectCommand() *cobra.Command {
	var ociRef, format, outPath, schemaPath string
	var schemaCheck, certs, jsonc, noHistory bool
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "inspect [file|-]",
		Short: "Decode nested payloads and classify an attestation document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			var raw []byte
			if ociRef != "" {
				if len(args) > 0 {
					return fmt.Errorf("--oci and a file argument are mutually exclusive")
				}
				raw, err = ociFetchFunc(ociRef)
			} else {
				path := ""
				if len(args) > 0 {
					path = args[0]
				}
				raw, err = readInput(cmd, path)
			}
			if err != nil {
				return err
			}

			opts := inspect.Options{
				JSONC:        jsonc || env.cfg.JSONC,
				MaxDepth:     env.cfg.MaxDepth,
				SchemaCheck:  schemaCheck,
				Certificates: certs,
				Logger:       env.logger,
			}
			if maxDepth > 0 {
				opts.MaxDepth = maxDepth
			}
			if schemaPath != "" {
				abs, err := filepath.Abs(schemaPath)
				if err != nil {
					return err
				}
				opts.SchemaPath = abs
			}
			rep, err := runInspect(raw, opts)
			if err != nil {
				return err
			}

			if !noHistory {
				if _, err := env.history().Add(string(raw), rep.Pattern.Type); err != nil {
					env.logger.Warn("could not save history", zap.Error(err))
				}
			}

			if outPath != "" {
				if err := report.Write(outPath, f, rep); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), outPath)
				return nil
			}
			out, err := report.Build(f, rep)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&ociRef, "oci", "", "read the document from an OCI artifact")
	cmd.Flags().StringVar(&format, "format", "json", "output format (json|md|yaml)")
	cmd.Flags().StringVar(&outPath, "out", "", "write the report to a file")
	cmd.Flags().BoolVar(&schemaCheck, "schema-check", false, "validate against the built-in schema for the detected type")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "validate against this JSON schema file instead of the built-in one")
	cmd.Flags().BoolVar(&certs, "certs", false, "parse embedded X.509 certificates")
	cmd.Flags().BoolVar(&jsonc, "jsonc", false, "accept comments and trailing commas")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "override the decode depth limit")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the document in history")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{Use: "history", Short: "Manage recently inspected documents"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List history entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			entries := env.history().List()
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "history is empty")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for i, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, e.ID, history.FormatTimestamp(e), history.Label(e))
			}
			return tw.Flush()
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <id|index>",
		Short: "Print the saved document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			e, err := lookupEntry(env.history(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.JSON)
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <index>",
		Short: "Remove one entry by list index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be a number: %w", err)
			}
			return env.history().Remove(idx)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			return env.history().Clear()
		},
	}

	historyCmd.AddCommand(listCmd, showCmd, removeCmd, clearCmd)
	return historyCmd
}

// lookupEntry accepts an entry ID or a list index.
func lookupEntry(s *history.Store, key string) (history.Entry, error) {
	if idx, err := strconv.Atoi(key); err == nil {
		entries := s.List()
		if idx < 0 || idx >= len(entries) {
			return history.Entry{}, fmt.Errorf("%w: index %d of %d", history.ErrNotFound, idx, len(entries))
		}
		return entries[idx], nil
	}
	return s.Get(key)
}

func newShareCommand() *cobra.Command {
	shareCmd := &cobra.Command{Use: "share", Short: "Build and read share links"}

	encodeCmd := &cobra.Command{
		Use:   "encode [file|-]",
		Short: "Print a share URL for a document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			text, err := readShareInput(cmd, args)
			if err != nil {
				return err
			}
			link, err := env.shareLink()
			if err != nil {
				return err
			}
			u, err := link.URL(text)
			if err != nil {
				return err
			}
			if len(u) > link.MaxLength {
				env.logger.Warn("share url exceeds maximum length", zap.Int("length", len(u)), zap.Int("max", link.MaxLength))
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: share URL is %d characters (limit %d)\n", len(u), link.MaxLength)
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}

	decodeCmd := &cobra.Command{
		Use:   "decode <token|url>",
		Short: "Print the document carried by a share token or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			text, err := share.Decode(share.TokenFromURL(args[0], env.cfg.ShareBaseURL))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check [file|-]",
		Short: "Report whether the share URL fits the length limit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			text, err := readShareInput(cmd, args)
			if err != nil {
				return err
			}
			link, err := env.shareLink()
			if err != nil {
				return err
			}
			tooLong, err := link.TooLong(text)
			if err != nil {
				return err
			}
			if tooLong {
				return cliError{code: exitGeneric, err: fmt.Errorf("share URL exceeds %d characters", link.MaxLength)}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "share URL fits")
			return nil
		},
	}

	shareCmd.AddCommand(encodeCmd, decodeCmd, checkCmd)
	return shareCmd
}

func readShareInput(cmd *cobra.Command, args []string) (string, error) {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	raw, err := readInput(cmd, path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func newCertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cert <base64|file>...",
		Short: "Show X.509 certificate details",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			encoded := make([]string, 0, len(args))
			for _, arg := range args {
				if raw, err := os.ReadFile(arg); err == nil {
					encoded = append(encoded, string(raw))
					continue
				}
				encoded = append(encoded, arg)
			}
			infos := certinfo.Parser{Logger: env.logger}.ParseAll(encoded)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(infos)
		},
	}
}

func newGateCommand() *cobra.Command {
	var policyPath, regoPolicyPath, ociRef string
	cmd := &cobra.Command{
		Use:   "gate [file|-]",
		Short: "Run policy gates and return non-zero on violations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if policyPath == "" && regoPolicyPath == "" {
				return fmt.Errorf("--policy or --rego is required")
			}
			env, err := loadRuntime(cmd)
			if err != nil {
				return err
			}

			var raw []byte
			if ociRef != "" {
				raw, err = ociFetchFunc(ociRef)
			} else {
				path := ""
				if len(args) > 0 {
					path = args[0]
				}
				raw, err = readInput(cmd, path)
			}
			if err != nil {
				return err
			}
			rep, err := runInspect(raw, inspect.Options{
				JSONC:       env.cfg.JSONC,
				MaxDepth:    env.cfg.MaxDepth,
				SchemaCheck: true,
				Logger:      env.logger,
			})
			if err != nil {
				return err
			}

			var policy policyyaml.Policy
			if policyPath != "" {
				policy, err = policyyaml.LoadPolicy(policyPath)
				if err != nil {
					return err
				}
			}

			violations := []string{}
			if regoPolicyPath != "" {
				result, err := policyrego.Evaluate(cmd.Context(), regoPolicyPath, policyrego.BuildInput(policy, rep))
				if err != nil {
					return err
				}
				if !result.Allow {
					violations = append(violations, result.Violations...)
					if len(violations) == 0 {
						violations = append(violations, "rego policy denied document")
					}
				}
			} else {
				violations = policyyaml.Evaluate(policy, policyyaml.View(rep))
			}

			if len(violations) > 0 {
				for _, v := range violations {
					fmt.Fprintln(cmd.OutOrStdout(), v)
				}
				return cliError{code: exitPolicyFail, err: fmt.Errorf("policy gate failed")}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "policy gate passed")
			return nil
		},
	}
	cmd.Flags().StringVar(&policyPath, "policy", "", "policy YAML path")
	cmd.Flags().StringVar(&regoPolicyPath, "rego", "", "Rego policy path; the YAML policy, if given, is passed as input.policy")
	cmd.Flags().StringVar(&ociRef, "oci", "", "read the document from an OCI artifact")
	return cmd
}

func newPublishCommand() *cobra.Command {
	var inPath, ociRef string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a JSON document to OCI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" || ociRef == "" {
				return fmt.Errorf("--in and --oci are required")
			}
			raw, err := os.ReadFile(inPath)
			if err != nil {
				return err
			}
			if !json.Valid(raw) {
				return cliError{code: exitInvalidJSON, err: inspect.ErrInvalidJSON}
			}
			pinned, err := ociPublishFunc(inPath, ociRef)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pinned)
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "document path")
	cmd.Flags().StringVar(&ociRef, "oci", "", "OCI destination")
	return cmd
}

func newPullCommand() *cobra.Command {
	var ociRef, outPath string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download a published JSON document from OCI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ociRef == "" || outPath == "" {
				return fmt.Errorf("--oci and --out are required")
			}
			if err := ociPullFunc(ociRef, outPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&ociRef, "oci", "", "OCI source")
	cmd.Flags().StringVar(&outPath, "out", "", "destination path")
	return cmd
}

func newServeCommand() *cobra.Command {
	var addr string
	var cacheTTLSeconds int
	var schemaCheck, certs bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP inspection service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			cfg := server.Config{
				Addr:            env.cfg.ListenAddr,
				CacheTTLSeconds: env.cfg.CacheTTLSeconds,
				Inspect: inspect.Options{
					JSONC:        env.cfg.JSONC,
					MaxDepth:     env.cfg.MaxDepth,
					SchemaCheck:  schemaCheck,
					Certificates: certs,
				},
				Logger: env.logger,
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("cache-ttl-seconds") {
				cfg.CacheTTLSeconds = cacheTTLSeconds
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().IntVar(&cacheTTLSeconds, "cache-ttl-seconds", 300, "report cache TTL in seconds (0 disables)")
	cmd.Flags().BoolVar(&schemaCheck, "schema-check", false, "schema check every request")
	cmd.Flags().BoolVar(&certs, "certs", false, "parse certificates for every request")
	return cmd
}
