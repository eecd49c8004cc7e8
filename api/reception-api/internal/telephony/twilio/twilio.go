// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_twilio_telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	internal_telephony "github.com/rapidaai/reception/api/reception-api/internal/telephony"
	"github.com/rapidaai/reception/pkg/commons"
)

type twl struct {
	client *twilio.RestClient
	logger commons.Logger
}

// NewTwilio creates the Twilio carrier client.
func NewTwilio(logger commons.Logger, accountSID, authToken string) internal_telephony.Carrier {
	return &twl{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		logger: logger,
	}
}

func (tpc *twl) Name() string { return "twilio" }

// Answer is a no-op on Twilio: inbound calls are answered by returning TwiML
// from the voice webhook, not by a REST action.
func (tpc *twl) Answer(_ context.Context, callID string) error {
	tpc.logger.Debugf("twilio answer (webhook-implicit): call=%s", callID)
	return nil
}

func (tpc *twl) StartStream(_ context.Context, callID, mediaEndpoint string) error {
	twiml := fmt.Sprintf(`<Response><Connect><Stream url="%s"/></Connect></Response>`, mediaEndpoint)
	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(twiml)
	_, err := tpc.client.Api.UpdateCall(callID, params)
	return tpc.wrap("streaming_start", callID, err)
}

// Speak on Twilio requires hosted media; raw audio payloads cannot be played
// over the REST API. Callers fall back to the transfer path instead.
func (tpc *twl) Speak(_ context.Context, callID string, _ []byte) error {
	return &internal_telephony.CarrierError{
		Operation: "speak",
		CallID:    callID,
		Retryable: false,
		Err:       errors.New("twilio playback requires hosted media"),
	}
}

func (tpc *twl) Transfer(_ context.Context, callID, destination string) error {
	twiml := fmt.Sprintf(`<Response><Dial>%s</Dial></Response>`, destination)
	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(twiml)
	_, err := tpc.client.Api.UpdateCall(callID, params)
	return tpc.wrap("transfer", callID, err)
}

func (tpc *twl) VerifyCallerID(_ context.Context, number string) error {
	params := &twilioApi.CreateValidationRequestParams{}
	params.SetPhoneNumber(number)
	_, err := tpc.client.Api.CreateValidationRequest(params)
	return tpc.wrap("verify_caller_id", number, err)
}

func (tpc *twl) wrap(operation, callID string, err error) error {
	if err == nil {
		return nil
	}
	carrierErr := &internal_telephony.CarrierError{
		Operation: operation,
		CallID:    callID,
		Retryable: true,
		Err:       err,
	}
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		carrierErr.StatusCode = restErr.Status
		carrierErr.Retryable = restErr.Status >= http.StatusInternalServerError ||
			restErr.Status == http.StatusTooManyRequests
	}
	return carrierErr
}
