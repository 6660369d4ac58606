package integration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/HavvokLab/solax-cloud/api/solax"
	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/pkg/util"
	"github.com/HavvokLab/solax-cloud/repo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.openly.dev/pointy"
)

const (
	FieldTokenID      = "token_id"
	FieldSerialNumber = "serial_number"
	FieldAPIBaseURL   = "api_base_url"

	ErrorBase = "base"

	ErrorRequired      = "required"
	ErrorCannotConnect = "cannot_connect"

	ReasonAlreadyConfigured = "already_configured"

	PlaceholderError = "error"
	StepUser         = "user"
)

type FlowResultType string

const (
	FlowResultCreateEntry FlowResultType = "create_entry"
	FlowResultForm        FlowResultType = "form"
	FlowResultAbort       FlowResultType = "abort"
)

type UserInput struct {
	TokenID      string  `json:"token_id"`
	SerialNumber string  `json:"serial_number"`
	APIBaseURL   *string `json:"api_base_url,omitempty"`
}

type FlowResult struct {
	Type                    FlowResultType         `json:"type"`
	StepID                  string                 `json:"step_id,omitempty"`
	Title                   string                 `json:"title,omitempty"`
	Entry                   *model.SolaxCredential `json:"-"`
	Errors                  map[string]string      `json:"errors,omitempty"`
	DescriptionPlaceholders map[string]string      `json:"description_placeholders,omitempty"`
	Reason                  string                 `json:"reason,omitempty"`
}

// NormalizeCredentials trims the user input and derives the unique id. The
// serial keeps its casing because the cloud treats it case-sensitively, while
// the unique id is upper-cased so the same inverter cannot be added twice.
func NormalizeCredentials(input UserInput) (UserInput, string) {
	cleaned := UserInput{
		TokenID:      strings.TrimSpace(input.TokenID),
		SerialNumber: strings.TrimSpace(input.SerialNumber),
	}

	if input.APIBaseURL != nil {
		if value := strings.TrimSpace(*input.APIBaseURL); value != "" {
			cleaned.APIBaseURL = pointy.String(value)
		}
	}

	return cleaned, strings.ToUpper(cleaned.SerialNumber)
}

// ClassifyAPIError maps a failure message to the form error. Specific vendor
// messages are passed along as the "error" placeholder.
func ClassifyAPIError(message string) (string, map[string]string) {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" || strings.Contains(normalized, "unknown error") {
		return ErrorCannotConnect, nil
	}

	return ErrorCannotConnect, map[string]string{PlaceholderError: strings.TrimSpace(message)}
}

// ConfigFlow validates credentials against the cloud before storing them.
type ConfigFlow struct {
	credentialRepo repo.SolaxCredentialRepo
	newClient      ClientFactory
	now            func() time.Time
	logger         zerolog.Logger
}

func NewConfigFlow(credentialRepo repo.SolaxCredentialRepo, newClient ClientFactory) *ConfigFlow {
	return &ConfigFlow{
		credentialRepo: credentialRepo,
		newClient:      newClient,
		now:            time.Now,
		logger:         logger.New("config_flow.log"),
	}
}

func (f *ConfigFlow) Submit(ctx context.Context, input UserInput) (FlowResult, error) {
	cleaned, uniqueID := NormalizeCredentials(input)

	errs := make(map[string]string)
	if util.IsEmpty(cleaned.TokenID) {
		errs[FieldTokenID] = ErrorRequired
	}
	if util.IsEmpty(cleaned.SerialNumber) {
		errs[FieldSerialNumber] = ErrorRequired
	}
	if len(errs) > 0 {
		return showForm(errs, nil), nil
	}

	configured, err := f.isConfigured(uniqueID)
	if err != nil {
		return FlowResult{}, err
	}
	if configured {
		return abort(ReasonAlreadyConfigured), nil
	}

	log := f.logger.With().
		Str("serial_number", util.Redact(cleaned.SerialNumber, 4)).
		Str("token_id", util.Redact(cleaned.TokenID, 4)).
		Logger()

	client := f.newClient(cleaned.TokenID, cleaned.SerialNumber, cleaned.APIBaseURL)
	result, err := client.GetRealtimeInfo(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return FlowResult{}, ctxErr
		}

		message := solax.Message(err)
		if solax.IsAuthenticationError(err) {
			log.Error().Err(err).Msg("ConfigFlow::Submit() - authentication with the SolaX Cloud API failed")
		} else {
			log.Error().Err(err).Msg("ConfigFlow::Submit() - SolaX Cloud API error")
		}

		code, placeholders := ClassifyAPIError(message)
		return showForm(map[string]string{ErrorBase: code}, placeholders), nil
	}

	now := f.now()
	credential := &model.SolaxCredential{
		ID:           uuid.NewString(),
		TokenID:      cleaned.TokenID,
		SerialNumber: cleaned.SerialNumber,
		APIBaseURL:   cleaned.APIBaseURL,
		UniqueID:     uniqueID,
		Title:        entryTitle(result, cleaned.SerialNumber),
		CreatedAt:    pointy.Pointer(now),
		UpdatedAt:    pointy.Pointer(now),
	}

	if err := f.credentialRepo.Create(credential); err != nil {
		// lost a race against a concurrent submit of the same inverter
		if configured, findErr := f.isConfigured(uniqueID); findErr == nil && configured {
			return abort(ReasonAlreadyConfigured), nil
		}
		return FlowResult{}, err
	}

	log.Info().Str("entry_id", credential.ID).Str("title", credential.Title).Msg("ConfigFlow::Submit() - entry created")
	return FlowResult{
		Type:   FlowResultCreateEntry,
		Title:  credential.Title,
		Entry:  credential,
		Errors: map[string]string{},
	}, nil
}

func (f *ConfigFlow) isConfigured(uniqueID string) (bool, error) {
	_, err := f.credentialRepo.FindByUniqueID(uniqueID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repo.ErrCredentialNotFound) {
		return false, nil
	}

	return false, err
}

func entryTitle(result map[string]any, serialNumber string) string {
	info, err := solax.DecodeRealtimeInfo(result)
	if err == nil && info.InverterSN != nil && !util.IsEmpty(*info.InverterSN) {
		return strings.TrimSpace(*info.InverterSN)
	}

	return serialNumber
}

func showForm(errs, placeholders map[string]string) FlowResult {
	return FlowResult{
		Type:                    FlowResultForm,
		StepID:                  StepUser,
		Errors:                  errs,
		DescriptionPlaceholders: placeholders,
	}
}

func abort(reason string) FlowResult {
	return FlowResult{Type: FlowResultAbort, Reason: reason}
}
