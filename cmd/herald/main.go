package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	goruntime "runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/heraldhq/herald/pkg/config"
	"github.com/heraldhq/herald/pkg/connector/registry"
	"github.com/heraldhq/herald/pkg/connector/runtime"
	"github.com/heraldhq/herald/pkg/logger"
	"github.com/heraldhq/herald/pkg/message"
	"github.com/heraldhq/herald/pkg/observability"
	"github.com/heraldhq/herald/pkg/schema"
	"github.com/heraldhq/herald/pkg/settings"

	// Import the built-in channels to register them
	_ "github.com/heraldhq/herald/pkg/connector/providers/loopback"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	viper.SetEnvPrefix("HERALD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	root := &cobra.Command{
		Use:   "herald",
		Short: "Herald - messaging channel connector framework",
		Long: `Herald hosts messaging channel connectors behind a single lifecycle:
declare a channel schema, validate settings against it, authenticate, and
exchange messages through a uniform operation surface.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{
				Level:    viper.GetString("log-level"),
				Encoding: "console",
			})
		},
	}

	root.PersistentFlags().String("config", "herald.yaml", "Path to the channel configuration YAML file")
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Herald v%s\n", version)
			fmt.Printf("Go version: %s\n", goruntime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", goruntime.GOOS, goruntime.GOARCH)
		},
	})

	// Channels command listing the registered catalog
	var channelsJSON bool
	channelsCmd := &cobra.Command{
		Use:   "channels",
		Short: "List registered channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := registry.Catalog()
			if channelsJSON {
				return printJSON(os.Stdout, catalog)
			}
			if len(catalog) == 0 {
				fmt.Println("No channels registered.")
				return nil
			}
			fmt.Println("Registered channels:")
			for _, e := range catalog {
				fmt.Printf("  - %s/%s@%s  %q\n", e.Provider, e.ChannelType, e.Version, e.DisplayName)
				fmt.Printf("      capabilities: %s\n", strings.Join(e.Capabilities, ", "))
				fmt.Printf("      auth methods: %s\n", strings.Join(e.AuthMethods, ", "))
			}
			return nil
		},
	}
	channelsCmd.Flags().BoolVar(&channelsJSON, "json", false, "Print the catalog as JSON")
	root.AddCommand(channelsCmd)

	// Schema inspection commands
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect channel schemas",
	}
	schemaCmd.AddCommand(&cobra.Command{
		Use:   "show <provider>/<channel>[@version]",
		Short: "Print a registered channel schema as JSON",
		Long: `Print the full declared schema of a registered channel as JSON.
Omitting the version (or passing @latest) selects the highest registered
version of the channel.

Example:
  herald schema show herald/loopback
  herald schema show twilio/sms@1.2.0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, channelType, ver, err := parseChannelRef(args[0])
			if err != nil {
				return err
			}
			def, err := registry.Resolve(provider, channelType, ver)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, def.Schema)
		},
	})
	root.AddCommand(schemaCmd)

	// Validate command checking a config file against registered schemas
	var watch bool
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a channel configuration file against registered schemas",
		Long: `Validate every channel in the configuration file: the channel must be
registered, and its settings must satisfy the channel schema's type,
allowed-value, and required-parameter declarations.

With --watch the command keeps running and re-validates whenever the
file changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if !watch {
				cfg, err := config.LoadConfig(path)
				if err != nil {
					return err
				}
				return reportValidation(cfg)
			}

			w, err := config.NewWatcher(path, func(cfg *config.Config, err error) {
				fmt.Printf("--- %s\n", time.Now().Format(time.TimeOnly))
				if err != nil {
					fmt.Printf("%s: %v\n", path, err)
					return
				}
				if verr := reportValidation(cfg); verr != nil {
					fmt.Println(verr)
				}
			})
			if err != nil {
				return err
			}
			defer w.Stop()

			fmt.Printf("Watching %s; press Ctrl-C to stop.\n", path)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	validateCmd.Flags().BoolVar(&watch, "watch", false, "Re-validate whenever the file changes")
	root.AddCommand(validateCmd)

	// Send command pushing one message through a configured channel
	var (
		channelName  string
		to           string
		from         string
		endpointType string
		contentType  string
		body         string
		msgID        string
		sendTimeout  time.Duration
	)
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send a single message through a configured channel",
		Long: `Send one message through a channel instance defined in the configuration
file. The command initializes the connector, sends, prints the result as
JSON, and shuts the connector down.

Example:
  herald send --channel alerts --to +15550123 --body "deploy finished"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(viper.GetString("config"), channelName, sendOptions{
				to:           to,
				from:         from,
				endpointType: endpointType,
				contentType:  contentType,
				body:         body,
				id:           msgID,
				timeout:      sendTimeout,
			})
		},
	}
	sendCmd.Flags().StringVarP(&channelName, "channel", "c", "", "Channel instance name from the config file (required)")
	sendCmd.Flags().StringVar(&to, "to", "", "Receiver address (required)")
	sendCmd.Flags().StringVar(&from, "from", "", "Sender address")
	sendCmd.Flags().StringVar(&endpointType, "endpoint-type", "", "Endpoint type tag; defaults to the schema's first receivable endpoint")
	sendCmd.Flags().StringVar(&contentType, "content-type", "Text", "Content type tag")
	sendCmd.Flags().StringVar(&body, "body", "", "Message body (required)")
	sendCmd.Flags().StringVar(&msgID, "id", "", "Message ID; generated when empty")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "Overall timeout for initialize and send")
	_ = sendCmd.MarkFlagRequired("channel")
	_ = sendCmd.MarkFlagRequired("to")
	_ = sendCmd.MarkFlagRequired("body")
	root.AddCommand(sendCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseChannelRef splits "provider/channel[@version]" into its parts.
func parseChannelRef(ref string) (provider, channelType, version string, err error) {
	rest := ref
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		version = rest[at+1:]
		rest = rest[:at]
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid channel reference %q; expected provider/channel[@version]", ref)
	}
	return parts[0], parts[1], version, nil
}

// reportValidation prints a per-channel validation report and returns an
// error when any channel fails.
func reportValidation(cfg *config.Config) error {
	names := make([]string, 0, len(cfg.Channels))
	for name := range cfg.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	invalid := 0
	for _, name := range names {
		cc := cfg.Channels[name]
		issues := validateChannel(cc)
		if len(issues) == 0 {
			fmt.Printf("  %s (%s/%s): ok\n", name, cc.Provider, cc.ChannelType)
			continue
		}
		invalid++
		fmt.Printf("  %s (%s/%s):\n", name, cc.Provider, cc.ChannelType)
		for _, issue := range issues {
			fmt.Printf("    - %s\n", issue)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d channel(s) failed validation", invalid, len(names))
	}
	fmt.Printf("%d channel(s) valid.\n", len(names))
	return nil
}

// validateChannel checks one channel document against its registered schema.
func validateChannel(cc config.ChannelConfig) []string {
	def, err := registry.Resolve(cc.Provider, cc.ChannelType, cc.Version)
	if err != nil {
		return []string{err.Error()}
	}

	store, err := settings.NewFromMap(def.Schema, cc.Settings)
	if err != nil {
		return []string{err.Error()}
	}

	var issues []string
	if result := store.Validate(); !result.Valid() {
		for _, e := range result.Errors() {
			issues = append(issues, e.Error())
		}
	}
	return issues
}

type sendOptions struct {
	to           string
	from         string
	endpointType string
	contentType  string
	body         string
	id           string
	timeout      time.Duration
}

// runSend builds a connector for the named channel instance, sends one
// message through it, and prints the result.
func runSend(configPath, channelName string, opts sendOptions) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	cc, ok := cfg.Channels[channelName]
	if !ok {
		return fmt.Errorf("channel '%s' is not defined in %s", channelName, configPath)
	}

	log := logger.Get().With(
		zap.String("component", "herald-cli"),
		zap.String("channel", channelName),
	)
	if lvl := cc.Observability.LogLevel; lvl != "" {
		parsed, perr := zapcore.ParseLevel(lvl)
		if perr != nil {
			return fmt.Errorf("channel '%s': invalid observability.log_level %q", channelName, lvl)
		}
		// IncreaseLevel only tightens the threshold; the --log-level flag
		// sets the floor.
		log = log.WithOptions(zap.IncreaseLevel(parsed))
	}

	if cc.Observability.EnableTracing {
		if terr := setupTracing(cfg, cc); terr != nil {
			return fmt.Errorf("tracing setup: %w", terr)
		}
		defer func() {
			fctx, fcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer fcancel()
			if ferr := observability.Shutdown(fctx); ferr != nil {
				log.Warn("tracing shutdown failed", zap.Error(ferr))
			}
		}()
	}

	conn, err := registry.NewConnector(cc.Provider, cc.ChannelType, cc.Version, cc.Settings,
		runtime.WithLogger(log),
		runtime.WithDispatchConfig(cc.Dispatch),
	)
	if err != nil {
		return fmt.Errorf("failed to build connector for '%s': %w", channelName, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	initResult, err := conn.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if !initResult.Successful {
		return fmt.Errorf("initialize failed [%s]: %s", initResult.Code, initResult.Message)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if _, serr := conn.Shutdown(sctx); serr != nil {
			log.Warn("shutdown failed", zap.Error(serr))
		}
	}()

	result, err := conn.Send(ctx, buildMessage(conn.Schema(), opts))
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if perr := printJSON(os.Stdout, result); perr != nil {
		return perr
	}
	if cc.Observability.EnableMetrics {
		if merr := dumpMetrics(os.Stderr); merr != nil {
			log.Warn("metrics dump failed", zap.Error(merr))
		}
	}
	if !result.Successful {
		return fmt.Errorf("send failed [%s]: %s", result.Code, result.Message)
	}
	return nil
}

// setupTracing installs the process tracer provider from the channel's
// observability block. Only the first call in a process takes effect.
func setupTracing(cfg *config.Config, cc config.ChannelConfig) error {
	obs := observability.DefaultConfig()
	if cfg.Name != "" {
		obs.Tracing.ServiceName = cfg.Name
	}
	if cfg.Environment != "" {
		obs.Tracing.Environment = cfg.Environment
	}
	obs.Tracing.SamplingRate = cc.Observability.TracingSampleRate
	return observability.Initialize(obs)
}

// dumpMetrics writes the herald_* metric families in the Prometheus text
// exposition format.
func dumpMetrics(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "herald_") {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// buildMessage assembles the outgoing message, defaulting the endpoint
// type from the schema when the channel is not wildcard-addressed.
func buildMessage(s *schema.Schema, opts sendOptions) *message.Message {
	id := opts.id
	if id == "" {
		id = uuid.NewString()
	}

	epType := opts.endpointType
	if epType == "" && !s.HasWildcardEndpoint() {
		for _, ep := range s.Endpoints() {
			if ep.CanReceive {
				epType = string(ep.Type)
				break
			}
		}
	}

	msg := &message.Message{
		ID:          id,
		Receiver:    message.Endpoint{Type: epType, Address: opts.to},
		ContentType: opts.contentType,
		Content:     opts.body,
	}
	if opts.from != "" {
		msg.Sender = message.Endpoint{Type: epType, Address: opts.from}
	}
	return msg
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
