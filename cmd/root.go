package main

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"icp-wizard/internal/config"
	"icp-wizard/internal/credentials"
	"icp-wizard/internal/integrations/openai"
	"icp-wizard/internal/integrations/paramstore"
	"icp-wizard/internal/logging"
	"icp-wizard/internal/usecase"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config
	logger     *log.Logger
}

func newRootCmd() *cobra.Command {
	cmd, _ := buildRootCmd()
	return cmd
}

func buildRootCmd() (*cobra.Command, *app) {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:   "icp",
		Short: "Guided Ideal Customer Profile interviews backed by a chat-completion model",
		Long: `icp runs the ICP wizard: a short interview that ends with a markdown
summary, an ICP JSON document and companies/people CSV files.

  icp serve     # web wizard and relay API
  icp lambda    # relay API as an AWS Lambda function
  icp chat      # terminal wizard
  icp schema    # print the ICP JSON schema`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Path to a config file (yaml, json or toml)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text, json, logfmt")
	pf.String("model", "gpt-4o-mini", "Chat-completion model")
	pf.String("finalize-model", "", "Model for the finalize call (defaults to --model)")
	pf.Float64("temperature", 0.2, "Sampling temperature")
	pf.String("openai-base-url", openai.DefaultBaseURL, "Base URL of the OpenAI-compatible API")
	pf.String("param-prefix", "", "SSM parameter prefix holding open-ai-token")
	pf.Int("max-history", 100, "Maximum messages accepted per request")
	pf.Duration("credential-ttl", 5*time.Minute, "How long a resolved API key is reused (0 keeps it until rejected)")
	pf.Duration("upstream-timeout", 2*time.Minute, "Upper bound for one upstream call (0 disables it)")

	cmd.AddCommand(
		newServeCmd(a),
		newLambdaCmd(a),
		newChatCmd(a),
		newSchemaCmd(),
	)
	return cmd, a
}

func (a *app) load(cmd *cobra.Command) error {
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// credentialSource reads OPENAI_API_KEY and, when a parameter prefix is
// configured, falls back to SSM Parameter Store.
func (a *app) credentialSource(ctx context.Context) (credentials.Source, error) {
	chain := credentials.Chain{credentials.NewEnv(config.APIKeyEnv)}
	if a.cfg.ParamPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		store, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, err
		}
		src, err := credentials.NewParamStore(store, a.cfg.ParamPrefix)
		if err != nil {
			return nil, err
		}
		chain = append(chain, src)
	}
	return credentials.NewCached(chain, a.cfg.CredentialTTL), nil
}

func (a *app) relayService(ctx context.Context) (*usecase.RelayService, error) {
	creds, err := a.credentialSource(ctx)
	if err != nil {
		return nil, err
	}
	llm, err := openai.NewClient(creds,
		openai.WithBaseURL(a.cfg.OpenAIBaseURL),
		openai.WithTimeout(a.cfg.UpstreamTimeout),
	)
	if err != nil {
		return nil, err
	}
	svc, err := usecase.NewRelayService(llm, usecase.RelayConfig{
		Model:         a.cfg.Model,
		FinalizeModel: a.cfg.FinalizeModel,
		Temperature:   a.cfg.Temperature,
		MaxHistory:    a.cfg.MaxHistory,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("relay configured",
		"model", a.cfg.Model,
		"finalize_model", a.cfg.FinalizeModel,
		"base_url", a.cfg.OpenAIBaseURL,
		"param_store", a.cfg.ParamPrefix != "",
	)
	return svc, nil
}
