package qbwc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const authenticateEnvelope = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
<soap:Body>
<authenticate xmlns="http://developer.intuit.com/">
<strUserName>qbwc-user</strUserName>
<strPassword>qbwc-pass</strPassword>
</authenticate>
</soap:Body>
</soap:Envelope>`

func TestParseAuthenticateRequest(t *testing.T) {
	env, err := parseRequest([]byte(authenticateEnvelope))
	require.NoError(t, err)
	require.NotNil(t, env.Body.Authenticate)
	assert.Equal(t, "qbwc-user", env.Body.Authenticate.Username)
	assert.Equal(t, "qbwc-pass", env.Body.Authenticate.Password)
	assert.Nil(t, env.Body.SendRequestXML)
}

func TestParseReceiveResponseRequest(t *testing.T) {
	raw := `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
<soap:Body>
<receiveResponseXML xmlns="http://developer.intuit.com/">
<ticket>abc-123</ticket>
<response>&lt;QBXML/&gt;</response>
<hresult>0x80040400</hresult>
<message>QuickBooks found an error</message>
</receiveResponseXML>
</soap:Body>
</soap:Envelope>`

	env, err := parseRequest([]byte(raw))
	require.NoError(t, err)
	call := env.Body.ReceiveResponseXML
	require.NotNil(t, call)
	assert.Equal(t, "abc-123", call.Ticket)
	assert.Equal(t, "<QBXML/>", call.Response)
	assert.Equal(t, "0x80040400", call.HResult)
	assert.Equal(t, "QuickBooks found an error", call.Message)
}

func TestParseRequestRejectsGarbage(t *testing.T) {
	_, err := parseRequest([]byte("this is not xml"))
	assert.Error(t, err)
}

func TestRenderAuthenticateResponse(t *testing.T) {
	out := renderAuthenticateResponse("ticket-1", `C:\QB\acme.qbw`)
	assert.Contains(t, out, `<authenticateResponse xmlns="http://developer.intuit.com/">`)
	assert.Contains(t, out, "<string>ticket-1</string>")
	assert.Contains(t, out, `<string>C:\QB\acme.qbw</string>`)
	assert.Contains(t, out, "<soap:Envelope")
}

func TestRenderStringResponseEscapesPayload(t *testing.T) {
	out := renderStringResponse("sendRequestXML", `<?xml version="1.0"?><QBXML/>`)
	assert.Contains(t, out, "<sendRequestXMLResult>")
	assert.Contains(t, out, "&lt;?xml version=")
	assert.Contains(t, out, "&lt;QBXML/&gt;")
	assert.NotContains(t, out, "<QBXML/>")
}

func TestRenderIntResponse(t *testing.T) {
	out := renderIntResponse("receiveResponseXML", 100)
	assert.Contains(t, out, "<receiveResponseXMLResult>100</receiveResponseXMLResult>")

	out = renderIntResponse("receiveResponseXML", -1)
	assert.Contains(t, out, "<receiveResponseXMLResult>-1</receiveResponseXMLResult>")
}
