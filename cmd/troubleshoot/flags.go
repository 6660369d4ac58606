package main

import (
	"flag"
	"log"

	"github.com/HavvokLab/solax-cloud/troubleshoot"
)

type options struct {
	configPath   string
	tokenID      string
	serialNumber string
	apiBaseURL   string
	format       string
	file         string
}

// parseFlags parses the credential flags and returns them.
func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to the YAML config file")
	flag.StringVar(&opts.tokenID, "token", "", "SolaX Cloud token id")
	flag.StringVar(&opts.serialNumber, "serial", "", "Registration number of the inverter")
	flag.StringVar(&opts.apiBaseURL, "base-url", "", "Custom API base URL tried before the default endpoints")
	flag.StringVar(&opts.format, "format", troubleshoot.FormatJSON, "Output format: json or csv")
	flag.StringVar(&opts.file, "file", "", "CSV file of token_id,serial_number,api_base_url rows to check")
	flag.Parse()

	if opts.file != "" {
		return opts
	}

	if opts.tokenID == "" || opts.serialNumber == "" {
		log.Fatal("Both token and serial must be provided.")
	}

	if opts.format != troubleshoot.FormatJSON && opts.format != troubleshoot.FormatCSV {
		log.Fatalf("Invalid format %q, expected json or csv.", opts.format)
	}

	return opts
}
