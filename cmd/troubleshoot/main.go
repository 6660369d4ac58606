package main

import (
	"context"
	"os"

	"github.com/HavvokLab/solax-cloud/api/solax"
	"github.com/HavvokLab/solax-cloud/config"
	"github.com/HavvokLab/solax-cloud/integration"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/troubleshoot"
	"github.com/rs/zerolog/log"
)

func main() {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.SetDir(cfg.Log.Dir)
	logger.Init("troubleshoot.log")
	logger.SetDebug(cfg.Log.Debug)

	limiter := integration.NewRateLimiter(cfg.Solax)
	serv := troubleshoot.NewSolaxTroubleshoot(integration.NewClientFactory(cfg.Solax, limiter))

	ctx := context.Background()
	if opts.file != "" {
		if err := serv.ExecuteFile(ctx, os.Stdout, opts.file); err != nil {
			log.Fatal().Err(err).Str("file", opts.file).Msg("failed to check credentials")
		}
		return
	}

	row := troubleshoot.CredentialRow{
		TokenID:      opts.tokenID,
		SerialNumber: opts.serialNumber,
		APIBaseURL:   opts.apiBaseURL,
	}
	if err := serv.Execute(ctx, os.Stdout, row, opts.format); err != nil {
		log.Fatal().Err(err).Str("message", solax.Message(err)).Msg("failed to fetch realtime info")
	}
}
