package qbwc

import (
	"io"
	"net/http"
)

const maxSOAPBody = 4 << 20

// Handler exposes the adapter at a single SOAP endpoint. GET serves the
// WSDL; POST dispatches by body element. Every dispatch is wrapped so that
// nothing ever propagates an error across the SOAP boundary: internal
// failures degrade to the protocol's sentinel values inside the adapter,
// and a panic degrades to an empty 200 envelope here.
type Handler struct {
	adapter *Adapter
}

func NewHandler(adapter *Adapter) *Handler {
	return &Handler{adapter: adapter}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveWSDL(w, r)
	case http.MethodPost:
		h.serveSOAP(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) serveWSDL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write([]byte(wsdl))
}

func (h *Handler) serveSOAP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.adapter.logger.Error().Interface("panic", rec).Msg("panic in soap dispatch")
			writeSOAP(w, emptySOAPEnvelope)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxSOAPBody))
	if err != nil {
		h.adapter.logger.Error().Err(err).Msg("failed to read soap body")
		writeSOAP(w, emptySOAPEnvelope)
		return
	}

	env, err := parseRequest(raw)
	if err != nil {
		h.adapter.logger.Warn().Err(err).Msg("unparseable soap request")
		writeSOAP(w, emptySOAPEnvelope)
		return
	}

	ctx := r.Context()
	body := env.Body
	switch {
	case body.Authenticate != nil:
		result := h.adapter.Authenticate(ctx, body.Authenticate.Username, body.Authenticate.Password)
		writeSOAP(w, renderAuthenticate(result))
	case body.SendRequestXML != nil:
		payload := h.adapter.SendRequest(ctx, body.SendRequestXML.Ticket, body.SendRequestXML.CompanyFileName)
		writeSOAP(w, renderStringResponse("sendRequestXML", payload))
	case body.ReceiveResponseXML != nil:
		call := body.ReceiveResponseXML
		percent := h.adapter.ReceiveResponse(ctx, call.Ticket, call.Response, call.HResult, call.Message)
		writeSOAP(w, renderIntResponse("receiveResponseXML", percent))
	case body.CloseConnection != nil:
		writeSOAP(w, renderStringResponse("closeConnection", h.adapter.CloseConnection(ctx, body.CloseConnection.Ticket)))
	case body.GetLastError != nil:
		writeSOAP(w, renderStringResponse("getLastError", h.adapter.LastError(ctx, body.GetLastError.Ticket)))
	case body.ConnectionError != nil:
		call := body.ConnectionError
		writeSOAP(w, renderStringResponse("connectionError", h.adapter.ConnectionError(ctx, call.Ticket, call.HResult, call.Message)))
	default:
		h.adapter.logger.Warn().Msg("soap request with no known operation")
		writeSOAP(w, emptySOAPEnvelope)
	}
}

// renderAuthenticate translates the typed outcome into the protocol's
// two-string return: sentinel second slot for nvu/none, company file hint
// on success.
func renderAuthenticate(result AuthResult) string {
	switch result.Outcome {
	case AuthOK:
		return renderAuthenticateResponse(result.Ticket, result.CompanyFile)
	case AuthNoWork:
		return renderAuthenticateResponse("none", "none")
	default:
		return renderAuthenticateResponse("nvu", "nvu")
	}
}

var emptySOAPEnvelope = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body></soap:Body></soap:Envelope>`

func writeSOAP(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write([]byte(body))
}
